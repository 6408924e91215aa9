package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/postsim/internal/backend"
	"github.com/san-kum/postsim/internal/batch"
	"github.com/san-kum/postsim/internal/config"
	"github.com/san-kum/postsim/internal/ctxlog"
	"github.com/san-kum/postsim/internal/diag"
	"github.com/san-kum/postsim/internal/dispatch"
	"github.com/san-kum/postsim/internal/dump"
	"github.com/san-kum/postsim/internal/merge"
	"github.com/san-kum/postsim/internal/progress"
	"github.com/san-kum/postsim/internal/registry"
	"github.com/san-kum/postsim/internal/report"
	"github.com/san-kum/postsim/internal/store"
	"github.com/spf13/cobra"
)

var (
	operation  string
	pattern    string
	start      float64
	end        float64
	workers    int
	resume     bool
	timeout    time.Duration
	outDir     string
	storeDir   string
	allowEmpty bool
	localOnly  bool
	showLive   bool
	options    []string
	configFile string
	preset     string
	verbose    bool
	// Plot shaping
	plotVar    string
	plotHeight int
	plotWidth  int
)

var exitCode int

func main() {
	rootCmd := &cobra.Command{
		Use:   "postsim",
		Short: "parallel post-processing for simulation dump series",
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run [model_dir...]",
		Short: "process the dump files of one or more runs",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runBatch,
	}
	runCmd.Flags().StringVar(&operation, "op", config.DefaultOperation, "operation to apply")
	runCmd.Flags().StringVar(&pattern, "pattern", config.DefaultPattern, "dump file glob")
	runCmd.Flags().Float64Var(&start, "start", 0, "lowest simulation time to process")
	runCmd.Flags().Float64Var(&end, "end", -1, "highest simulation time to process (-1 unbounded)")
	runCmd.Flags().IntVar(&workers, "workers", 0, "local worker count (0 = cpu count)")
	runCmd.Flags().BoolVar(&resume, "resume", false, "skip items whose output already exists")
	runCmd.Flags().DurationVar(&timeout, "timeout", 0, "batch deadline per model (0 = none)")
	runCmd.Flags().StringVar(&outDir, "out", config.DefaultOutDir, "frame output directory (relative to model)")
	runCmd.Flags().StringVar(&storeDir, "stores", config.DefaultStoreDir, "summary store base directory")
	runCmd.Flags().BoolVar(&allowEmpty, "allow-empty", false, "treat zero matching dumps as success")
	runCmd.Flags().BoolVar(&localOnly, "local", false, "ignore distributed launch variables")
	runCmd.Flags().BoolVar(&showLive, "live", false, "live progress view")
	runCmd.Flags().StringArrayVarP(&options, "option", "O", nil, "operation option key=value")
	runCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	runCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list summary stores",
		RunE:  listStores,
	}
	listCmd.Flags().StringVar(&storeDir, "stores", config.DefaultStoreDir, "summary store base directory")

	plotCmd := &cobra.Command{
		Use:   "plot [store_dir]",
		Short: "plot a stored series",
		Args:  cobra.ExactArgs(1),
		RunE:  plotStore,
	}
	plotCmd.Flags().StringVar(&plotVar, "var", "", "variable to plot (default: first)")
	plotCmd.Flags().IntVar(&plotHeight, "height", 10, "plot height")
	plotCmd.Flags().IntVar(&plotWidth, "width", 80, "plot width")

	exportCmd := &cobra.Command{
		Use:   "export [store_dir]",
		Short: "export a store to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportStore,
	}

	opsCmd := &cobra.Command{
		Use:   "ops",
		Short: "list available operations",
		RunE:  listOps,
	}

	diagCmd := &cobra.Command{
		Use:   "diag [model_dir]",
		Short: "show a run's diagnostics series",
		Args:  cobra.ExactArgs(1),
		RunE:  showDiag,
	}
	diagCmd.Flags().IntVar(&plotHeight, "height", 10, "plot height")
	diagCmd.Flags().IntVar(&plotWidth, "width", 80, "plot width")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list preset configurations",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := config.ListPresets()
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("  %s\t(%s)\n", name, config.Presets[name].Operation)
			}
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, listCmd, plotCmd, exportCmd, opsCmd, diagCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
	os.Exit(exitCode)
}

func setupContext() context.Context {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return ctxlog.WithLogger(context.Background(), logger)
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := setupContext()
	logger := ctxlog.FromContext(ctx)

	if preset != "" {
		cfg := config.GetPreset(preset)
		if cfg == nil {
			return fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
		operation = cfg.Operation
		pattern = cfg.Pattern
		resume = cfg.Resume
		outDir = cfg.OutDir
		storeDir = cfg.StoreDir
	}

	if configFile != "" {
		cfg, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if !cmd.Flags().Changed("op") {
			operation = cfg.Operation
		}
		if !cmd.Flags().Changed("pattern") {
			pattern = cfg.Pattern
		}
		if !cmd.Flags().Changed("workers") {
			workers = cfg.Workers
		}
		if !cmd.Flags().Changed("resume") {
			resume = cfg.Resume
		}
		if !cmd.Flags().Changed("timeout") {
			timeout = cfg.Timeout
		}
		if !cmd.Flags().Changed("start") {
			start = cfg.Start
		}
		if !cmd.Flags().Changed("end") {
			end = cfg.End
		}
		if !cmd.Flags().Changed("out") {
			outDir = cfg.OutDir
		}
		if !cmd.Flags().Changed("stores") {
			storeDir = cfg.StoreDir
		}
		if !cmd.Flags().Changed("allow-empty") {
			allowEmpty = cfg.AllowEmpty
		}
	}

	opts, err := parseOptions(options)
	if err != nil {
		return err
	}

	reg := registry.Default()
	op, err := reg.Get(operation)
	if err != nil {
		return err
	}

	env := backend.CaptureEnvironment()
	be := backend.Select(env, backend.Options{
		ForceLocal: localOnly,
		Workers:    workers,
		Registry:   reg,
	})
	if d, ok := be.(*backend.Distributed); ok {
		defer d.Close()
	}

	// Worker ranks serve the coordinator for the whole batch and own no
	// stores, reports, or terminal output.
	if be.Role() == backend.Worker {
		logger.Info("serving as distributed worker", "rank", env.Rank, "coordinator", env.CoordAddr)
		out, err := be.Apply(ctx, nil, nil, registry.Operation{})
		if err != nil {
			return err
		}
		for range out {
		}
		return nil
	}

	batchRep := report.NewBatchReport()
	logger.Info("starting batch", "id", batchRep.ID, "operation", operation, "models", len(args))

	for _, root := range args {
		rep, err := runModel(ctx, be, op, root, opts)
		if err != nil {
			return fmt.Errorf("model %s: %w", root, err)
		}
		batchRep.Add(rep)
	}

	batchRep.Render(os.Stdout)
	exitCode = batchRep.ExitCode()
	return nil
}

func runModel(ctx context.Context, be backend.Backend, op registry.Operation, root string, opts map[string]string) (*report.ModelReport, error) {
	logger := ctxlog.FromContext(ctx)
	name := filepath.Base(filepath.Clean(root))

	model, err := dump.Discover(root, pattern, dump.Window{Start: start, End: end}, allowEmpty)
	if err != nil {
		return nil, err
	}
	model.Name = name
	logger.Info("discovered work", "model", name, "items", len(model.Items))

	diagnostics, err := diag.Load(root)
	if err != nil {
		return nil, err
	}

	frameDir := outDir
	if !filepath.IsAbs(frameDir) {
		frameDir = filepath.Join(root, frameDir)
	}
	if op.Kind == registry.Render {
		if err := os.MkdirAll(frameDir, 0755); err != nil {
			return nil, err
		}
	}

	wctx := &batch.Context{
		ModelName:   name,
		ModelRoot:   root,
		OutDir:      frameDir,
		Options:     opts,
		Diagnostics: diagnostics,
	}

	var merger merge.Merger
	var st *store.Store
	dispatchOpts := dispatch.Options{Resume: resume, Timeout: timeout}

	if op.Kind == registry.Render {
		merger = merge.NewTally()
	} else {
		dir := filepath.Join(storeDir, name+"-"+op.Name)
		if resume && storeExists(dir) {
			st, err = store.OpenAppend(dir)
		} else {
			st, err = store.Create(dir, name, op.Name)
		}
		if err != nil {
			return nil, err
		}
		defer st.Close()
		dispatchOpts.Exists = st.Exists
		merger = merge.NewStoreMerger(st, model.Times())
	}

	var events chan dispatch.Event
	var prog *tea.Program
	progDone := make(chan error, 1)
	if showLive {
		events = make(chan dispatch.Event, 16)
		dispatchOpts.Events = events
		prog = tea.NewProgram(progress.New(name, op.Name, len(model.Items), events))
		go func() {
			_, err := prog.Run()
			// Keep draining after the view exits so the dispatcher's
			// sends never block on a gone consumer.
			for range events {
			}
			progDone <- err
		}()
	}

	rep, err := dispatch.Run(ctx, be, model, wctx, op, merger, dispatchOpts)
	if prog != nil {
		<-progDone
	}
	if err != nil {
		return rep, err
	}
	if err := merger.Close(); err != nil {
		return rep, err
	}
	if st != nil {
		if err := st.Close(); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

func storeExists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, "metadata.json"))
	return err == nil
}

func parseOptions(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	opts := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := cutOption(pair)
		if !ok {
			return nil, fmt.Errorf("bad option %q, want key=value", pair)
		}
		opts[k] = v
	}
	return opts, nil
}

func cutOption(pair string) (string, string, bool) {
	for i := 0; i < len(pair); i++ {
		if pair[i] == '=' {
			return pair[:i], pair[i+1:], i > 0
		}
	}
	return "", "", false
}

func listStores(cmd *cobra.Command, args []string) error {
	stores, err := store.List(storeDir)
	if err != nil {
		return err
	}
	if len(stores) == 0 {
		fmt.Println("no stores found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tOP\tTIMES\tLAST\tVARS\tUPDATED")
	for _, meta := range stores {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%g\t%d\t%s\n",
			meta.ID,
			meta.Model,
			meta.Operation,
			meta.Count,
			meta.LastTime,
			len(meta.Variables),
			meta.Updated.Format("2006-01-02 15:04:05"),
		)
	}
	return w.Flush()
}

func plotStore(cmd *cobra.Command, args []string) error {
	s, err := store.OpenRead(args[0])
	if err != nil {
		return err
	}
	meta := s.Meta()
	if len(meta.Variables) == 0 {
		return fmt.Errorf("store %s holds no variables", args[0])
	}

	name := plotVar
	if name == "" {
		name = meta.Variables[0]
	}

	_, vals, err := s.Series(name)
	if err != nil {
		return err
	}
	if len(vals) == 0 {
		return fmt.Errorf("no data for variable %s", name)
	}

	fmt.Printf("store: %s\n", meta.ID)
	fmt.Printf("model: %s  op: %s  times: %d\n\n", meta.Model, meta.Operation, meta.Count)

	graph := asciigraph.Plot(vals,
		asciigraph.Height(plotHeight),
		asciigraph.Width(plotWidth),
		asciigraph.Caption(name+" vs time"),
	)
	fmt.Println(graph)
	return nil
}

func exportStore(cmd *cobra.Command, args []string) error {
	s, err := store.OpenRead(args[0])
	if err != nil {
		return err
	}
	return s.ExportJSON(os.Stdout)
}

func listOps(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND")
	for _, op := range registry.Default().List() {
		fmt.Fprintf(w, "%s\t%s\n", op.Name, op.Kind)
	}
	return w.Flush()
}

// showDiag plots each diagnostics series of one run.
func showDiag(cmd *cobra.Command, args []string) error {
	d, err := diag.Load(args[0])
	if err != nil {
		return err
	}
	if d == nil || len(d.Times) == 0 {
		fmt.Println("no diagnostics found")
		return nil
	}

	names := make([]string, 0, len(d.Series))
	for name := range d.Series {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("samples: %d  span: [%g, %g]\n\n", len(d.Times), d.Times[0], d.Times[len(d.Times)-1])
	for _, name := range names {
		graph := asciigraph.Plot(d.Series[name],
			asciigraph.Height(plotHeight),
			asciigraph.Width(plotWidth),
			asciigraph.Caption(name),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}
