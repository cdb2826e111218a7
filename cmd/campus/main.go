package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-campus/internal/feature"
	"github.com/joeblew999/plat-campus/internal/logger"
	"github.com/joeblew999/plat-campus/internal/server"
	"github.com/joeblew999/plat-campus/internal/service"
)

// Options defines all CLI flags and env vars for the campus server.
// Flags: --host, --port, --data-dir, --templates, --style, --styles, --authoring, --session-ttl
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_STYLE, ...
type Options struct {
	Host       string `doc:"Host to bind to" default:"0.0.0.0"`
	Port       int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir    string `doc:"Directory holding sources/, paint.json and the building database" default:".data"`
	Templates  string `doc:"Reload page templates from this directory instead of the embedded ones"`
	Style      string `doc:"Default base style URL" default:"https://demotiles.maplibre.org/style.json"`
	Styles     string `doc:"Extra base styles as Name=url,Name=url (styles.yaml in the data dir is read too)"`
	Authoring  bool   `doc:"Serve the /editor page for drawing buildings" default:"true"`
	SessionTTL int    `doc:"Minutes an idle map session is kept" default:"10"`
}

func newServer(opts *Options) *server.Server {
	styles, err := service.LoadStyles(opts.DataDir, opts.Styles, opts.Style)
	if err != nil {
		logger.L().Warn("ignoring style list", "error", err)
		styles = nil
	}
	return server.New(server.Config{
		Host:         opts.Host,
		Port:         fmt.Sprintf("%d", opts.Port),
		DataDir:      opts.DataDir,
		TemplatesDir: opts.Templates,
		Style:        opts.Style,
		Styles:       styles,
		Authoring:    opts.Authoring,
		SessionTTL:   time.Duration(opts.SessionTTL) * time.Minute,
		Log:          logger.L(),
	})
}

func main() {
	// .env is optional
	_ = godotenv.Load()
	logger.Setup()

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		var srv *server.Server

		hooks.OnStart(func() {
			srv = newServer(opts)
			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-campus server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Data:    %s\n", opts.DataDir)
			fmt.Println()
			if opts.Authoring {
				fmt.Printf("  Pages:   %s/viewer, %s/editor\n", baseURL, baseURL)
			} else {
				fmt.Printf("  Pages:   %s/viewer\n", baseURL)
			}
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Println()

			if err := http.ListenAndServe(addr, srv); err != nil {
				log.Fatalf("Server error: %v", err)
			}
		})

		hooks.OnStop(func() {
			if srv != nil {
				srv.Close()
			}
		})
	})

	cli.Root().Use = "campus"
	cli.Root().Short = "Campus map with live search, selection and building authoring"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv := newServer(opts)
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			var err error
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// check subcommand: validate the campus collections
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Load the campus collections and report features that would be dropped",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			catalog := service.NewCatalogService(opts.DataDir, nil, nil, logger.L())
			data, err := catalog.Load(context.Background())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error loading collections: %v\n", err)
				os.Exit(1)
			}

			store := feature.NewStore(logger.Discard())
			problems := store.Load(data)
			for _, c := range feature.Collections {
				fmt.Printf("  %-10s %d features\n", c, len(store.Get(c).Features))
			}
			for _, p := range problems {
				fmt.Printf("  dropped: %v\n", p)
			}
			if len(problems) > 0 {
				fmt.Fprintf(os.Stderr, "%d problem(s) found\n", len(problems))
				os.Exit(1)
			}
			fmt.Println("ok")
		}),
	}
	cli.Root().AddCommand(checkCmd)

	cli.Run()
}
