// Command ephraim is the terminal coding agent's entrypoint: it wires the
// tool registry, the dual-model provider pair, the phase-automaton driver,
// and the ambient config/logging/history stack together into a REPL, then
// hands control to internal/loop for every goal the user types.
//
// Boot order is grounded on cmd/omega/main.go's sequence — load env, build
// the registry, initialize tools, load workspace extensions, then construct
// the handler(s) — adapted from a web server's one-time setup to a REPL's
// one-time setup.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ephraim-dev/ephraim/internal/background"
	"github.com/ephraim-dev/ephraim/internal/cmdhistory"
	"github.com/ephraim-dev/ephraim/internal/command"
	"github.com/ephraim-dev/ephraim/internal/config"
	"github.com/ephraim-dev/ephraim/internal/gitstate"
	"github.com/ephraim-dev/ephraim/internal/hooks"
	"github.com/ephraim-dev/ephraim/internal/loop"
	"github.com/ephraim-dev/ephraim/internal/manager"
	"github.com/ephraim-dev/ephraim/internal/mcp"
	"github.com/ephraim-dev/ephraim/internal/memory"
	"github.com/ephraim-dev/ephraim/internal/model"
	"github.com/ephraim-dev/ephraim/internal/plan"
	"github.com/ephraim-dev/ephraim/internal/skill"
	"github.com/ephraim-dev/ephraim/internal/state"
	"github.com/ephraim-dev/ephraim/internal/subagent"
	"github.com/ephraim-dev/ephraim/internal/tool"
	"github.com/ephraim-dev/ephraim/internal/tool/builtin"
	"github.com/ephraim-dev/ephraim/internal/translog"
)

const version = "0.1.0"

func main() {
	root := &cobra.Command{
		Use:     "ephraim",
		Short:   "Ephraim — a terminal coding agent",
		Version: version,
	}
	root.PersistentFlags().Bool("debug", false, "print the terminal action and phase after each goal")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(*cobra.Command, []string) {
			fmt.Printf("ephraim %s\n", version)
		},
	}
	root.AddCommand(newRunCmd(), newStatusCmd(), newConfigCmd(), newResetCmd(), versionCmd)
	root.SetVersionTemplate("ephraim {{.Version}}\n")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// ── run ──

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [goal]",
		Short: "Start the interactive agent loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			return runREPL(strings.Join(args, " "), debug)
		},
	}
}

func runREPL(initialGoal string, debug bool) error {
	config.LoadEnv()

	workspaceDir := os.Getenv("WORKSPACE_DIR")
	if workspaceDir == "" {
		var err error
		workspaceDir, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve workspace dir: %w", err)
		}
	}
	if info, err := os.Stat(workspaceDir); err != nil || !info.IsDir() {
		return fmt.Errorf("WORKSPACE_DIR %q does not exist or is not a directory", workspaceDir)
	}

	var out io.Writer = os.Stdout
	sessionLog, err := translog.Open(workspaceDir)
	if err != nil {
		log.Printf("⚠️  session log disabled: %v", err)
	} else {
		defer sessionLog.Close()
		out = io.MultiWriter(os.Stdout, sessionLog)
	}

	fmt.Fprintln(out, "Ephraim — terminal coding agent")
	fmt.Fprintf(out, "workspace: %s\n", workspaceDir)

	ephraimCfg, err := config.LoadEphraimConfig(filepath.Join(workspaceDir, "Ephraim.md"))
	if err != nil {
		return fmt.Errorf("load Ephraim.md: %w", err)
	}

	registry, err := buildRegistry(workspaceDir, ephraimCfg, out)
	if err != nil {
		return err
	}
	defer registry.CloseAll()

	planner, executor, err := buildProviders()
	if err != nil {
		return err
	}

	maxIterations := getEnvIntOrDefault("EPHRAIM_MAX_ITERATIONS", 50)
	mgr := manager.New(registry, maxIterations)
	mem := memory.New(getEnvIntOrDefault("EPHRAIM_MEMORY_TURNS", 20))

	ls := loop.NewLoopState(mgr, planner, executor, registry, mem)
	ls.RepoRoot = workspaceDir
	ls.Constraints = ephraimCfg.Constraints()
	ls.CIEnabled = len(ephraimCfg.ValidationCommands()) > 0 && hasCICommand(ephraimCfg)
	ls.Out = out
	ls.AskUser = makeAskUser(out)
	ls.ConfirmPlan = makeConfirmPlan(out)
	ls.RunValidation = makeCommandRunner(ephraimCfg.ValidationCommands(), "没有配置 Validation Expectations 命令，跳过验证")
	ls.RunCI = makeCommandRunner(ciCommands(ephraimCfg), "没有配置 CI 命令，跳过 CI 检查")
	ls.WriteContextDoc = writeContextDoc

	hookMgr := hooks.New()
	n := hookMgr.LoadFromConfig(ephraimCfg.RawMarkdown)
	if n > 0 {
		fmt.Fprintf(out, "hooks: %d loaded from Ephraim.md\n", n)
	}
	hookMgr.Run(context.Background(), hooks.EventOnStart, "", workspaceDir, nil)

	dispatcher := &command.Dispatcher{Mgr: mgr, Mem: mem}
	driver := loop.NewDriver()

	history, _ := cmdhistory.Load()
	if len(history) > 0 {
		fmt.Fprintf(out, "history: %d prior entries at ~/.ephraim/history\n", len(history))
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	runGoal := func(goal string) bool {
		_ = cmdhistory.Append(goal)
		if g, err := gitstate.Refresh(workspaceDir); err == nil {
			mgr.UpdateGit(g)
		}

		action := driver.RunGoal(context.Background(), ls, goal)
		if debug {
			fmt.Fprintf(out, "[debug] terminal action: %s phase: %s\n", action, mgr.State().Phase)
		}

		answer := lastFinalAnswer(mgr.State())
		mem.Append(memory.Turn{
			UserMsg:   goal,
			Assistant: answer,
			Phase:     string(mgr.State().Phase),
			Success:   mgr.State().Phase == state.PhaseCompleted,
			Timestamp: time.Now(),
		})
		hookMgr.Run(context.Background(), hooks.EventOnComplete, "", workspaceDir, nil)
		return true
	}

	if strings.TrimSpace(initialGoal) != "" {
		runGoal(initialGoal)
	}

	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			fmt.Fprint(out, "> ")
			continue
		}

		res := dispatcher.Dispatch(line)
		if res.Handled {
			if res.Quit {
				break
			}
			if res.Message != "" {
				fmt.Fprintln(out, res.Message)
			}
			if res.ExpandedGoal != "" {
				runGoal(res.ExpandedGoal)
			}
			fmt.Fprint(out, "> ")
			continue
		}

		runGoal(line)
		fmt.Fprint(out, "> ")
	}

	return scanner.Err()
}

// ── status ──

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the last recorded Context.md snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspaceDir, err := os.Getwd()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(filepath.Join(workspaceDir, "Context.md"))
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Println("no Context.md found — run `ephraim run` first")
					return nil
				}
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	}
}

// ── config ──

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print resolved configuration (env + Ephraim.md)",
		RunE: func(cmd *cobra.Command, args []string) error {
			config.LoadEnv()
			workspaceDir, err := os.Getwd()
			if err != nil {
				return err
			}
			cfg, err := config.LoadEphraimConfig(filepath.Join(workspaceDir, "Ephraim.md"))
			if err != nil {
				return err
			}
			fmt.Printf("workspace: %s\n", workspaceDir)
			fmt.Printf("model: %s @ %s\n", getEnvOrDefault("EPHRAIM_LLM_MODEL", "gpt-4o"), getEnvOrDefault("EPHRAIM_LLM_BASE_URL", "https://api.openai.com/v1"))
			fmt.Printf("max iterations: %d\n", getEnvIntOrDefault("EPHRAIM_MAX_ITERATIONS", 50))
			fmt.Printf("force-complete threshold: %d\n", model.ForceCompleteThreshold())
			fmt.Printf("architecture constraints: %d\n", len(cfg.ArchitectureConstraints))
			fmt.Printf("coding standards: %d\n", len(cfg.CodingStandards))
			fmt.Printf("protected areas: %d\n", len(cfg.ProtectedAreas))
			fmt.Printf("validation commands: %v\n", cfg.ValidationCommands())
			fmt.Printf("git rules: %d\n", len(cfg.GitRules))
			return nil
		},
	}
}

// ── reset ──

func newResetCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Rewrite Context.md to its default template and (with --all) clear command history",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspaceDir, err := os.Getwd()
			if err != nil {
				return err
			}
			template := "# Current Task\n\n(none)\n\n# Phase\n\nBOOT\n\n# Active Plan\n\n(no plan)\n\n" +
				"# Recent Decisions\n\n\n# CI Status\n\n(no CI run)\n\n# Git Status\n\n(git status unknown)\n\n" +
				"# Next Steps\n\n(awaiting plan)\n\n# Updated\n\n" + time.Now().Format(time.RFC3339) + "\n"
			if err := os.WriteFile(filepath.Join(workspaceDir, "Context.md"), []byte(template), 0o644); err != nil {
				return err
			}
			removed := 0
			if all {
				if histPath, err := cmdhistory.Path(); err == nil {
					if err := removeIfExists(histPath); err == nil {
						removed++
					}
				}
			}
			fmt.Printf("reset: Context.md rewritten, %d history file(s) removed\n", removed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "also clear ~/.ephraim/history")
	return cmd
}

func removeIfExists(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	return os.Remove(path)
}

// ── wiring helpers ──

func buildRegistry(workspaceDir string, cfg *config.EphraimConfig, out io.Writer) (*tool.Registry, error) {
	registry := tool.NewRegistry()

	shellEnabled := os.Getenv("TOOL_SHELL_ENABLED") != "false"
	registry.Register(builtin.NewShellTool(workspaceDir, shellEnabled))
	registry.Register(builtin.NewFileReadTool(workspaceDir))
	registry.Register(builtin.NewFileWriteTool(workspaceDir))
	registry.Register(builtin.NewFileListTool(workspaceDir))
	registry.Register(builtin.NewFileFindTool(workspaceDir))
	registry.Register(builtin.NewFileGrepTool(workspaceDir))
	registry.Register(builtin.NewFileMoveTool(workspaceDir))
	registry.Register(builtin.NewFileOpenTool(workspaceDir))
	registry.Register(builtin.NewFileDeleteTool(workspaceDir))
	registry.Register(builtin.NewFilePatchTool(workspaceDir))
	registry.Register(builtin.NewTimeTool())
	registry.Register(builtin.NewWebReaderTool())
	registry.Register(builtin.NewGitInfoTool(workspaceDir))
	registry.Register(builtin.NewGitCommitTool(workspaceDir))
	registry.Register(builtin.NewFinalAnswerTool())
	registry.Register(builtin.NewReplanTool())

	if os.Getenv("TOOL_HTTP_ENABLED") != "false" {
		allowInternal := os.Getenv("TOOL_HTTP_ALLOW_INTERNAL") == "true"
		registry.Register(builtin.NewHTTPRequestTool(allowInternal))
	}
	if key := os.Getenv("TAVILY_API_KEY"); key != "" {
		registry.Register(builtin.NewTavilySearchTool(key))
	}
	if key := os.Getenv("BRAVE_API_KEY"); key != "" {
		registry.Register(builtin.NewBraveSearchTool(key))
	}

	registry.Register(builtin.NewCIStatusTool(strings.Join(ciCommands(cfg), " && ")))

	envFile := envFilePath()
	registry.Register(builtin.NewConfigEditTool(map[string]string{
		".env":       envFile,
		"Ephraim.md": filepath.Join(workspaceDir, "Ephraim.md"),
	}))

	planStore := plan.NewPlanStore()
	registry.Register(builtin.NewUpdatePlanTool(planStore, "cli", func(steps []plan.PlanStep) {
		fmt.Fprintf(out, "plan updated: %d step(s)\n", len(steps))
	}))

	sup := subagent.NewSupervisor(nil)
	registry.Register(builtin.NewSpawnSubagentTool(sup))
	registry.Register(builtin.NewSubagentStatusTool(sup))
	registry.Register(builtin.NewCancelSubagentTool(sup))

	bg := background.New()
	registry.Register(builtin.NewBackgroundStartTool(bg, workspaceDir))
	registry.Register(builtin.NewBackgroundStatusTool(bg))
	registry.Register(builtin.NewBackgroundOutputTool(bg))
	registry.Register(builtin.NewBackgroundStopTool(bg))
	registry.Register(builtin.NewBackgroundListTool(bg))

	skillMgr := skill.NewManager(workspaceDir)
	if n, errs := skillMgr.LoadAll(context.Background(), registry); n > 0 || len(errs) > 0 {
		fmt.Fprintf(out, "workspace skills: %d loaded\n", n)
		for _, e := range errs {
			log.Printf("⚠️  skill load: %v", e)
		}
	}
	registry.Register(skill.NewReloadTool(skillMgr, registry))

	mcpConfigPath := os.Getenv("MCP_CONFIG")
	if mcpConfigPath == "" {
		mcpConfigPath = filepath.Join(workspaceDir, "mcp.json")
	}
	registry.Register(builtin.NewMCPServerAddTool(mcpConfigPath))
	registry.Register(builtin.NewMCPServerRemoveTool(mcpConfigPath))
	registry.Register(builtin.NewMCPServerListTool(mcpConfigPath))

	if _, err := os.Stat(mcpConfigPath); err == nil {
		mcpMgr := mcp.NewManager(mcpConfigPath)
		mcpMgr.AddReloadHook(skillMgr.Reload)
		registry.Register(mcp.NewReloadTool(mcpMgr, registry))

		n, errs := mcpMgr.ConnectAll(context.Background())
		for _, e := range errs {
			log.Printf("⚠️  MCP connect: %v", e)
		}
		if n > 0 {
			if err := mcpMgr.RegisterTools(context.Background(), registry); err != nil {
				log.Printf("⚠️  MCP register tools: %v", err)
			}
			fmt.Fprintf(out, "MCP: %d server(s) connected\n", n)
		}
	}

	if err := registry.InitAll(context.Background()); err != nil {
		return nil, fmt.Errorf("init tools: %w", err)
	}
	fmt.Fprintf(out, "tools: %d registered\n", len(registry.List()))
	return registry, nil
}

func buildProviders() (model.Provider, model.Provider, error) {
	client, err := model.NewClientFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("init model client: %w", err)
	}
	executor := model.Provider(client)
	if executorModel := os.Getenv("EPHRAIM_EXECUTOR_MODEL"); executorModel != "" {
		executorCfg, err := model.NewConfigFromEnv()
		if err != nil {
			return nil, nil, err
		}
		executorCfg.Model = executorModel
		if executor, err = model.NewClient(executorCfg); err != nil {
			return nil, nil, fmt.Errorf("init executor model client: %w", err)
		}
	}
	// One OpenAI-compatible client serves both seats; EPHRAIM_PLANNER_MODEL /
	// EPHRAIM_EXECUTOR_MODEL let an operator point the two phases at
	// different models via two separate env-derived Configs (§4.E "dual
	// reasoning loop") without duplicating HTTP client plumbing.
	if plannerModel := os.Getenv("EPHRAIM_PLANNER_MODEL"); plannerModel != "" {
		plannerCfg, err := model.NewConfigFromEnv()
		if err != nil {
			return nil, nil, err
		}
		plannerCfg.Model = plannerModel
		plannerClient, err := model.NewClient(plannerCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("init planner model client: %w", err)
		}
		return plannerClient, executor, nil
	}
	return client, executor, nil
}

func makeAskUser(out io.Writer) func(string) string {
	return func(question string) string {
		fmt.Fprintf(out, "\n🤔 %s\n> ", question)
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			return scanner.Text()
		}
		return ""
	}
}

func makeConfirmPlan(out io.Writer) func(p *state.Plan) bool {
	return func(p *state.Plan) bool {
		if p == nil {
			return false
		}
		fmt.Fprintln(out, "\n=== proposed plan ===")
		fmt.Fprintf(out, "%s\n", p.GoalUnderstanding)
		for i, step := range p.Steps {
			fmt.Fprintf(out, "%d. %s\n", i+1, step)
		}
		fmt.Fprintf(out, "risk: %s\nvalidation: %s\ncommit: %s\n", p.RiskAssessment, p.ValidationPlan, p.CommitStrategy)
		fmt.Fprint(out, "approve? [y/N] ")
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		return answer == "y" || answer == "yes"
	}
}

// makeCommandRunner builds a RunValidation/RunCI closure that shells out to
// the joined commands via CIStatusTool's own subprocess/timeout machinery,
// without going through the tool registry — these are orchestration steps
// the phase nodes call directly, not model-dispatched tool calls (see
// internal/loop/state.go's LoopState.RunValidation/RunCI doc comment).
func makeCommandRunner(commands []string, skipSummary string) func(*loop.LoopState) tool.ToolResult {
	joined := strings.Join(commands, " && ")
	runner := builtin.NewCIStatusTool(joined)
	return func(ls *loop.LoopState) tool.ToolResult {
		if joined == "" {
			return tool.Ok(skipSummary, nil)
		}
		result, _ := runner.Execute(context.Background(), []byte("{}"))
		return result
	}
}

func ciCommands(cfg *config.EphraimConfig) []string {
	var out []string
	for _, cmd := range cfg.ValidationCommands() {
		if strings.Contains(strings.ToLower(cmd), "ci") {
			out = append(out, cmd)
		}
	}
	return out
}

func hasCICommand(cfg *config.EphraimConfig) bool {
	return len(ciCommands(cfg)) > 0
}

func lastFinalAnswer(s *state.State) string {
	for i := len(s.ActionLog) - 1; i >= 0; i-- {
		a := s.ActionLog[i]
		if a.Tool == "final_answer" {
			if summary, ok := a.Result["summary"].(string); ok {
				return summary
			}
		}
	}
	return ""
}

func writeContextDoc(ls *loop.LoopState) error {
	s := ls.Mgr.State()
	path := filepath.Join(ls.RepoRoot, "Context.md")

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Current Task\n\n%s\n\n", s.Goal)
	fmt.Fprintf(&sb, "# Phase\n\n%s\n\n", s.Phase)

	fmt.Fprintf(&sb, "# Active Plan\n\n")
	if s.Plan == nil {
		sb.WriteString("(no plan)\n\n")
	} else {
		for i, step := range s.Plan.Steps {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, step)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "# Recent Decisions\n\n")
	for _, a := range s.RecentActions(5) {
		status := "ok"
		if !a.Success {
			status = "failed"
		}
		summary, _ := a.Result["summary"].(string)
		fmt.Fprintf(&sb, "- %s (%s): %s\n", a.Tool, status, summary)
	}
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "# CI Status\n\n")
	if s.CI == nil {
		sb.WriteString("(no CI run)\n\n")
	} else {
		fmt.Fprintf(&sb, "status=%s conclusion=%s duration=%s\n\n", s.CI.Status, s.CI.Conclusion, s.CI.Duration)
	}

	fmt.Fprintf(&sb, "# Git Status\n\n")
	if s.Git == nil {
		sb.WriteString("(git status unknown)\n\n")
	} else {
		clean := "clean"
		if !s.Git.Clean {
			clean = "dirty"
		}
		fmt.Fprintf(&sb, "branch=%s %s modified=%d untracked=%d staged=%d\n\n",
			s.Git.Branch, clean, len(s.Git.Modified), len(s.Git.Untracked), len(s.Git.Staged))
	}

	fmt.Fprintf(&sb, "# Next Steps\n\n")
	if s.Plan != nil {
		step := ls.Mgr.CurrentStepIndex(-1)
		if step >= 0 && step < len(s.Plan.Steps) {
			fmt.Fprintf(&sb, "%s\n\n", s.Plan.Steps[step])
		} else {
			sb.WriteString("(plan complete)\n\n")
		}
	} else {
		sb.WriteString("(awaiting plan)\n\n")
	}

	fmt.Fprintf(&sb, "# Updated\n\n%s\n", time.Now().Format(time.RFC3339))

	return os.WriteFile(path, []byte(sb.String()), 0o644)
}

func envFilePath() string {
	if cwd, err := os.Getwd(); err == nil {
		return filepath.Join(cwd, ".env")
	}
	return ".env"
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("[Config] WARNING: invalid %s=%q (must be an integer), using default %d", key, v, def)
	}
	return def
}
