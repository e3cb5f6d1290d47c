package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"fieldlens/internal/browser"
	"fieldlens/internal/config"
	"fieldlens/internal/factlog"
	"fieldlens/internal/mailbox"
	mcpserver "fieldlens/internal/mcp"
	"fieldlens/internal/picker"
	"fieldlens/internal/recorder"
	"fieldlens/internal/schema"
	"fieldlens/internal/selection"
	"fieldlens/internal/selector"
	"fieldlens/internal/workflow"
)

func main() {
	configPath := flag.String("config", "", "Path to a fieldlens config file (overrides workspace config)")
	pageURL := flag.String("url", "", "Page to load into the picker on startup")
	mcpMode := flag.Bool("mcp", false, "Serve MCP instead of the interactive prompt")
	ssePort := flag.Int("sse-port", 0, "Optional SSE port override (falls back to config)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, wsDir, err := config.LoadWithWorkspace(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if wsDir != "" {
		log.Printf("using workspace %s", wsDir)
	}
	if *ssePort != 0 {
		cfg.MCP.SSEPort = *ssePort
	}

	// Redirect logging to file for stdio MCP mode (stderr interferes with the protocol).
	if *mcpMode && cfg.MCP.SSEPort == 0 && cfg.Server.LogFile != "" {
		logFile, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			log.SetOutput(logFile)
			defer logFile.Close()
		} else {
			log.SetOutput(io.Discard)
		}
	}

	fieldSchema := schema.Default()
	if cfg.Schema.Path != "" {
		fieldSchema, err = schema.Load(cfg.Schema.Path)
		if err != nil {
			log.Fatalf("failed to load field schema: %v", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		log.Fatalf("failed to create store directory: %v", err)
	}
	store, err := selector.NewStore(cfg.Store.Path)
	if err != nil {
		log.Fatalf("failed to open selector store: %v", err)
	}
	defer store.Close()

	facts, err := factlog.NewEngine(cfg.Facts)
	if err != nil {
		log.Fatalf("failed to initialize fact log: %v", err)
	}

	rec, err := recorder.NewRecorder(cfg.Server.TraceDir)
	if err != nil {
		log.Fatalf("failed to initialize trace recorder: %v", err)
	}
	defer rec.Close()

	mgr := browser.NewManager(cfg.Browser)
	if err := mgr.Start(ctx); err != nil {
		log.Fatalf("failed to connect to browser: %v", err)
	}
	defer mgr.Shutdown(context.Background())

	tester := &selector.Tester{
		Store:   store,
		Load:    selector.LiveLoader(mgr),
		Timeout: cfg.Browser.LoadTimeout(),
	}

	session := workflow.NewSession(workflow.Options{
		Schema:  fieldSchema,
		Store:   store,
		Tester:  tester,
		Facts:   facts,
		Rec:     rec,
		Browser: mgr,
	})
	if err := rec.Start(session.ID); err != nil {
		log.Printf("trace recorder disabled: %v", err)
	}

	if *pageURL != "" {
		if err := session.LoadPage(ctx, *pageURL); err != nil {
			log.Fatalf("failed to load %s: %v", *pageURL, err)
		}
	}

	bridge := picker.NewBridge(mgr)
	session.OnChange = func(view selection.MenuView) {
		if err := bridge.RenderMenu(ctx, view); err != nil {
			log.Printf("menu render failed: %v", err)
		}
	}

	// Initial menu injection when a page is already loaded.
	if *pageURL != "" {
		if err := bridge.RenderMenu(ctx, session.View()); err != nil {
			log.Printf("initial menu render failed: %v", err)
		}
	}

	// The poll loop drains page-side clicks and actions; all navigator
	// mutations happen through the session lock.
	ctrl := &mailbox.Controller{
		Box:          mailbox.New(),
		Nav:          session,
		Interval:     cfg.Picker.Interval(),
		FetchTimeout: cfg.Picker.Timeout(),
		Fetch: func(ctx context.Context) (*mailbox.Action, error) {
			if _, ok := mgr.Page(); !ok {
				return nil, nil
			}
			sels, err := bridge.DrainSelections(ctx)
			if err != nil {
				return nil, err
			}
			for _, sel := range sels {
				if err := session.RecordSelection(sel); err != nil {
					log.Printf("selection rejected: %v", err)
				}
			}
			return bridge.FetchAction(ctx)
		},
	}
	go func() {
		if err := ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("poll loop exited: %v", err)
		}
	}()

	if *mcpMode {
		server, err := mcpserver.NewServer(cfg, session)
		if err != nil {
			log.Fatalf("failed to initialize MCP server: %v", err)
		}

		var startErr error
		if cfg.MCP.SSEPort > 0 {
			log.Printf("starting fieldlens MCP SSE server on port %d", cfg.MCP.SSEPort)
			startErr = server.StartSSE(ctx, cfg.MCP.SSEPort)
		} else {
			log.Printf("starting fieldlens MCP stdio server")
			startErr = server.Start(ctx)
		}
		if startErr != nil && !errors.Is(startErr, context.Canceled) {
			log.Fatalf("server exited with error: %v", startErr)
		}
		return
	}

	// One-shot command mode: fieldlens -url ... save title
	if args := flag.Args(); len(args) > 0 {
		if err := runCommand(ctx, session, args); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	repl(ctx, session)
}

func repl(ctx context.Context, session *workflow.Session) {
	fmt.Println("fieldlens — type 'help' for commands, 'quit' to exit")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Printf("%s> ", promptPath(session))
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		args := strings.Fields(line)
		switch args[0] {
		case "quit", "exit":
			return
		case "help":
			printHelp()
			continue
		}
		if err := runCommand(ctx, session, args); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func promptPath(session *workflow.Session) string {
	if path := session.ContextPath(); path != "" {
		return path
	}
	return "root"
}

func printHelp() {
	fmt.Print(`commands:
  navigate parent              go up one level
  navigate enter FIELD [N]     enter instance N of a nested field (default 0)
  navigate depth N             ascend to depth N via the breadcrumb trail
  navigate add-instance FIELD  create and enter the next instance
  show                         print the current field menu
  load URL                     load a page into the picker
  pick FIELD SELECTOR          record the first element a probe selector matches
  save FIELD                   persist the latest recorded selection
  manual FIELD NOTE...         flag a field for manual entry
  test FIELD                   verify the stored selector on the page
  test-all                     verify every selector for this site
  status                       list selectors with success rates
  facts QUERY...               run a Mangle query over the fact log
  quit                         exit
`)
}

func runCommand(ctx context.Context, session *workflow.Session, args []string) error {
	switch cmd := args[0]; cmd {
	case "navigate":
		return runNavigate(session, args[1:])

	case "show":
		printView(session)
		return nil

	case "load":
		if len(args) != 2 {
			return errors.New("usage: load URL")
		}
		return session.LoadPage(ctx, args[1])

	case "pick":
		if len(args) < 3 {
			return errors.New("usage: pick FIELD SELECTOR")
		}
		sel, err := session.CaptureFromPage(ctx, args[1], strings.Join(args[2:], " "))
		if err != nil {
			return err
		}
		fmt.Printf("recorded %s: xpath=%s text=%q\n", sel.Field, sel.XPath, sel.Text)
		return nil

	case "save":
		if len(args) != 2 {
			return errors.New("usage: save FIELD")
		}
		saved, err := session.SaveField(args[1])
		if err != nil {
			return err
		}
		fmt.Printf("saved %s: xpath=%s css=%s\n", saved.Key(), saved.XPath, saved.CSSSelector)
		return nil

	case "manual":
		if len(args) < 2 {
			return errors.New("usage: manual FIELD NOTE...")
		}
		marked, err := session.MarkManual(args[1], strings.Join(args[2:], " "))
		if err != nil {
			return err
		}
		fmt.Printf("flagged %s for manual entry\n", marked.Key())
		return nil

	case "test":
		if len(args) != 2 {
			return errors.New("usage: test FIELD")
		}
		result, err := session.TestField(ctx, args[1])
		if err != nil {
			return err
		}
		printResult(args[1], result)
		if !result.Success {
			return fmt.Errorf("selector test failed for %q", args[1])
		}
		return nil

	case "test-all":
		results, err := session.TestAll(ctx)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("nothing to test")
			return nil
		}
		failed := 0
		for key, result := range results {
			printResult(key, result)
			if !result.Success {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d selector tests failed", failed, len(results))
		}
		return nil

	case "status":
		statuses, err := session.Status()
		if err != nil {
			return err
		}
		if len(statuses) == 0 {
			fmt.Println("no selectors stored for this site")
			return nil
		}
		for _, st := range statuses {
			flag := " "
			if st.Selector.Manual {
				flag = "M"
			}
			fmt.Printf("%s %-40s rate=%.2f xpath=%s\n", flag, st.Selector.Key(), st.SuccessRate, st.Selector.XPath)
		}
		return nil

	case "facts":
		if len(args) < 2 {
			return errors.New("usage: facts QUERY...")
		}
		results, err := session.QueryFacts(strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		for _, r := range results {
			fmt.Printf("%v\n", r)
		}
		fmt.Printf("%d result(s)\n", len(results))
		return nil

	default:
		return fmt.Errorf("unknown command %q (try 'help')", cmd)
	}
}

func runNavigate(session *workflow.Session, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: navigate parent|enter|depth|add-instance ...")
	}
	switch action := args[0]; action {
	case "parent":
		if err := session.NavigateToParent(); err != nil {
			return err
		}
	case "enter":
		if len(args) < 2 {
			return errors.New("usage: navigate enter FIELD [INDEX]")
		}
		instance := 0
		if len(args) > 2 {
			n, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("bad instance index %q: %w", args[2], err)
			}
			instance = n
		}
		if err := session.EnterNestedField(args[1], instance); err != nil {
			return err
		}
	case "depth":
		if len(args) != 2 {
			return errors.New("usage: navigate depth N")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("bad depth %q: %w", args[1], err)
		}
		if err := session.NavigateToDepth(n); err != nil {
			return err
		}
	case "add-instance":
		if len(args) != 2 {
			return errors.New("usage: navigate add-instance FIELD")
		}
		next, err := session.AddInstance(args[1])
		if err != nil {
			return err
		}
		fmt.Printf("entered instance %d\n", next)
	default:
		return fmt.Errorf("unknown navigate action %q", action)
	}
	printView(session)
	return nil
}

func printResult(key string, result *selector.TestResult) {
	if result.Success {
		fmt.Printf("PASS %-40s matches=%d sample=%q\n", key, result.MatchCount, result.ExtractedPreview)
		return
	}
	if result.Error != "" {
		fmt.Printf("FAIL %-40s %s\n", key, result.Error)
		return
	}
	fmt.Printf("FAIL %-40s no matches\n", key)
}

func printView(session *workflow.Session) {
	view := session.View()
	fmt.Printf("depth %d: %s\n", view.Depth, strings.Join(view.Breadcrumbs, " > "))
	for _, f := range view.Fields {
		marker := " "
		if f.Cardinality == string(schema.Nested) {
			marker = ">"
		}
		fmt.Printf("  %s %-28s %s\n", marker, f.Name, f.Label)
	}
}
