package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fieldline/internal/app"
	"fieldline/internal/config"
	"fieldline/internal/db"
	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/server"
	"fieldline/internal/session"
)

var rootCmd = &cobra.Command{
	Use:   "fieldline",
	Short: "Fieldline field operations client",
	Long: `Fieldline is the command line client for the field operations backend.
- Workspace: the .fieldline directory holding the local database (saved login and sync journal).
- Incidents: open -> in_progress -> completed; taking an incident assigns it to you.
- Reports: draft -> in_progress -> completed -> archived, forward only.
- Persons: missing or wanted cases, closed with 'persons resolve'.
- Vacations: requests are decided by admins with 'vacations approve|reject'.
- Chat: private conversations (--peer) and broadcast channels (--channel).
- Journal: every login, expiry and saved change, view with 'fieldline log tail'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace, err := homedir.Expand(viper.GetString("workspace"))
		if err != nil {
			return err
		}
		viper.Set("workspace", workspace)
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", engine.UserMessage(err))
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FIELDLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("base-url", "", "backend base URL (overrides config)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log background activity to stderr")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("base-url", rootCmd.PersistentFlags().Lookup("base-url"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	configCmd := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	configCmd.AddCommand(configInitCmd(), configShowCmd())

	incidentsCmd := &cobra.Command{Use: "incidents", Aliases: []string{"incident"}, Short: "Incidents"}
	incidentsCmd.AddCommand(incidentListCmd(), incidentCreateCmd(), incidentAssignCmd(), incidentStatusCmd(), incidentCompleteCmd(), incidentDeleteCmd())

	reportsCmd := &cobra.Command{Use: "reports", Aliases: []string{"report"}, Short: "Reports"}
	reportsCmd.AddCommand(reportListCmd(), reportCreateCmd(), reportStatusCmd())

	personsCmd := &cobra.Command{Use: "persons", Aliases: []string{"person"}, Short: "Missing and wanted persons"}
	personsCmd.AddCommand(personListCmd(), personCreateCmd(), personResolveCmd())

	vacationsCmd := &cobra.Command{Use: "vacations", Aliases: []string{"vacation"}, Short: "Vacation requests"}
	vacationsCmd.AddCommand(vacationMineCmd(), vacationPendingCmd(), vacationApproveCmd(), vacationRejectCmd())

	chatCmd := &cobra.Command{Use: "chat", Short: "Private and channel messages"}
	chatCmd.AddCommand(chatShowCmd(), chatSendCmd())

	logCmd := &cobra.Command{Use: "log", Short: "Sync journal"}
	logCmd.AddCommand(logTailCmd())

	rootCmd.AddCommand(
		configCmd,
		loginCmd(),
		registerCmd(),
		logoutCmd(),
		whoamiCmd(),
		profileCmd(),
		statsCmd(),
		incidentsCmd,
		reportsCmd,
		personsCmd,
		vacationsCmd,
		chatCmd,
		rosterCmd(),
		watchCmd(),
		logCmd,
		mockBackendCmd(),
	)
}

var errNotLoggedIn = errors.New("not logged in; run fieldline login")

func configInitCmd() *cobra.Command {
	var baseURL string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default fieldline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			data := config.GenerateDefault(baseURL)
			if _, err := config.FromYAML([]byte(data)); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
				return err
			}
			fmt.Println("Wrote", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", config.DefaultBaseURL, "backend base URL")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printYAML(cfg)
		},
	}
}

func loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session in this workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = viper.GetString("password")
			}
			if strings.TrimSpace(email) == "" || password == "" {
				return errors.New("--email and --password (or FIELDLINE_PASSWORD) are required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Login(ctx, email, password); err != nil {
					return err
				}
				u, _ := a.Session.User()
				fmt.Printf("Angemeldet als %s (%s)\n", u.DisplayName(), u.Role)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	return cmd
}

func registerCmd() *cobra.Command {
	var in domain.RegisterInput
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			if in.Password == "" {
				in.Password = viper.GetString("password")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				tok, err := a.Session.Register(ctx, in)
				if err != nil {
					return err
				}
				fmt.Printf("Konto angelegt: %s\n", tok.User.DisplayName())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.Email, "email", "", "account email")
	cmd.Flags().StringVar(&in.Password, "password", "", "account password")
	cmd.Flags().StringVar(&in.Username, "username", "", "username")
	cmd.Flags().StringVar(&in.Name, "name", "", "full name")
	cmd.Flags().StringVar(&in.Phone, "phone", "", "phone number")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Logout(ctx); err != nil {
					return err
				}
				fmt.Println("Abgemeldet.")
				return nil
			})
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, _ := a.Session.User()
				return printUser(u)
			})
		},
	}
}

func profileCmd() *cobra.Command {
	var name, phone, status string
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Update name, phone or duty status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var in domain.ProfileInput
			if cmd.Flags().Changed("name") {
				in.Name = &name
			}
			if cmd.Flags().Changed("phone") {
				in.Phone = &phone
			}
			if cmd.Flags().Changed("status") {
				in.Status = &status
			}
			return withSession(cmd.Context(), func(ctx context.Context, a *app.App) error {
				h, err := a.Engine.UpdateProfile(ctx, in)
				if err != nil {
					return err
				}
				u, err := h.Wait(ctx)
				if err != nil {
					return err
				}
				return printUser(u)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&status, "status", "", "duty status")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show dashboard statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Engine.RefreshHome(ctx); err != nil {
					return err
				}
				if err := a.Engine.RefreshPersonStats(ctx); err != nil {
					return err
				}
				stats, _ := a.Store.Stats.Get()
				persons, _ := a.Store.PersonStats.Get()
				return printStats(stats, persons)
			})
		},
	}
}

func rosterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "roster",
		Short: "List team members by duty status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Engine.RefreshRoster(ctx); err != nil {
					return err
				}
				return printUsers(a.Store.Users.Items())
			})
		},
	}
}

func watchCmd() *cobra.Command {
	var tab, peer, channel string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep polling and print every cache change until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ctx, cancel := context.WithCancel(ctx)
				defer cancel()
				a.Session.OnChange(func(s session.State) {
					if s == session.Unauthenticated {
						cancel()
					}
				})
				a.Passive = false
				ok, err := a.Bootstrap(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return errNotLoggedIn
				}
				switch {
				case peer != "":
					id, err := resolvePeer(ctx, a, peer)
					if err != nil {
						return err
					}
					a.OpenChat(id)
				case channel != "" || tab == string(app.TabChat):
					a.OpenChannel(channel)
				default:
					a.SwitchTab(app.Tab(tab))
				}
				if err := a.InitialLoad(ctx); err != nil {
					a.Logger.Printf("watch: initial load failed: %v", err)
				}
				fmt.Fprintf(os.Stderr, "Beobachte %s (Strg+C beendet) ...\n", strings.Join(a.Poll.Names(), ", "))
				for {
					select {
					case <-ctx.Done():
						if a.SessionState() != session.Authenticated {
							return errors.New("session ended")
						}
						return nil
					case name := <-a.Store.Changes():
						printChange(a, name)
					}
				}
			})
		},
	}
	cmd.Flags().StringVar(&tab, "tab", string(app.TabHome), "tab to poll for (home, team, chat)")
	cmd.Flags().StringVar(&peer, "peer", "", "open a private chat (user id, email or username)")
	cmd.Flags().StringVar(&channel, "channel", "", "open a broadcast channel")
	return cmd
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail the sync journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				events, err := a.Journal.Tail(ctx, n)
				if err != nil {
					return err
				}
				return printEvents(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

func mockBackendCmd() *cobra.Command {
	var addr, password string
	var seed bool
	cmd := &cobra.Command{
		Use:   "mock-backend",
		Short: "Serve an in-memory field operations backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("FIELDLINE_JWT_SECRET is required for bearer auth")
			}
			srv, err := server.New(server.Config{JWTSecret: secret, Logger: log.New(os.Stderr, "", log.LstdFlags)})
			if err != nil {
				return err
			}
			if seed {
				if _, err := srv.SeedUser("leitung@example.org", password, "Petra Leitung", domain.RoleAdmin); err != nil {
					return err
				}
				if _, err := srv.SeedUser("streife@example.org", password, "Tom Streife", domain.RoleUser); err != nil {
					return err
				}
			}
			httpSrv := &http.Server{Addr: addr, Handler: srv.Handler()}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				httpSrv.Shutdown(ctx)
			}()
			fmt.Printf("Serving mock backend on http://%s/api (OpenAPI at /openapi.json)\n", addr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().BoolVar(&seed, "seed", true, "create the demo accounts")
	cmd.Flags().StringVar(&password, "password", "einsatz123", "password of the demo accounts")
	return cmd
}

// --- helpers ---

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(viper.GetString("workspace"))
	if err != nil {
		return nil, err
	}
	if u := viper.GetString("base-url"); u != "" {
		cfg.Backend.BaseURL = u
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// withApp opens the workspace without touching the session. Poll channels
// stay off unless the command flips App.Passive.
func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := io.Discard
	if viper.GetBool("verbose") {
		out = os.Stderr
	}
	a, err := app.Open(ctx, viper.GetString("workspace"), cfg, log.New(out, "", log.LstdFlags))
	if err != nil {
		return err
	}
	defer a.Close()
	a.Passive = true
	return fn(ctx, a)
}

// withSession is withApp for commands that need a restored login.
func withSession(ctx context.Context, fn func(context.Context, *app.App) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		a.Session.BootstrapDelay = 0
		ok, err := a.Bootstrap(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return errNotLoggedIn
		}
		return fn(ctx, a)
	})
}
