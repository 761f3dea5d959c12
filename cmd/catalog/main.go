// Package main is a terminal client for the remote product catalog.
//
// Usage:
//
//	catalog [-config file] list
//	catalog [-config file] show <id>
//	catalog [-config file] add -name N [-description D] -price P
//	catalog [-config file] edit <id> [-name N] [-description D] [-price P]
//	catalog [-config file] delete [-yes] <id>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/abgdnv/productcatalog/internal/config"
	"github.com/abgdnv/productcatalog/internal/platform/logger"
	"github.com/abgdnv/productcatalog/internal/platform/telemetry"
	"github.com/abgdnv/productcatalog/internal/product/app"
	"github.com/abgdnv/productcatalog/internal/product/store"
	"github.com/abgdnv/productcatalog/internal/product/view"
)

const serviceName = "catalog"

const (
	exitOK = iota
	exitFailed
	exitUsage
)

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// terminal bundles the streams of a command.
type terminal struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configFile := fs.String("config", "config.yaml", "path of the yaml configuration file")
	envFile := fs.String("env", ".env", "path of the .env file")
	fs.Usage = func() { usage(stderr, fs) }
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return exitUsage
	}

	cfg, err := config.LoadFrom(*configFile, *envFile)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "failed to load configuration: %v\n", err)
		return exitFailed
	}

	// rendered output goes to stdout, logs must not mix with it
	appLogger := logger.New(stderr, cfg.Log.Level)
	slog.SetDefault(appLogger)
	appLogger.Debug("Configuration loaded", "config", cfg.String())

	if cfg.Telemetry.Enabled {
		tp, err := telemetry.NewTracerProvider(ctx, serviceName, telemetry.Config{
			Endpoint: cfg.Telemetry.Endpoint,
			Insecure: cfg.Telemetry.Insecure,
			Timeout:  cfg.Shutdown.Timeout,
		})
		if err != nil {
			appLogger.Error("Failed to create tracer provider", "error", err)
			return exitFailed
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				appLogger.Error("Tracer provider shutdown failed", "error", err)
			}
		}()
	}

	deps, err := app.SetupDependencies(cfg, appLogger, store.WithObserver(func(s store.Snapshot) {
		appLogger.Debug("Store changed", "products", len(s.Products), "loading", s.Loading, "error", s.Error)
	}))
	if err != nil {
		appLogger.Error("Error setting up application", "error", err)
		return exitFailed
	}
	defer deps.Close()

	term := terminal{in: stdin, out: stdout, err: stderr}
	err = dispatch(ctx, deps.Store, term, fs.Arg(0), fs.Args()[1:])
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errUsage):
		fs.Usage()
		return exitUsage
	case errors.Is(err, flag.ErrHelp):
		return exitOK
	default:
		return exitFailed
	}
}

func usage(w io.Writer, fs *flag.FlagSet) {
	_, _ = fmt.Fprintf(w, `Usage: %s [flags] <command> [args]

Commands:
  list                                   show all products
  show <id>                              show a single product
  add -name N [-description D] -price P  add a product
  edit <id> [-name N] [-description D] [-price P]
                                         change a product
  delete [-yes] <id>                     delete a product

Flags:
`, serviceName)
	fs.PrintDefaults()
}

// errFailed reports a failure that was already shown to the user.
var errFailed = errors.New("command failed")

// catalogStore is the store as seen by the commands.
type catalogStore interface {
	view.Catalog
	// Start loads the collection once for commands that do not show the list first.
	Start(ctx context.Context)
}

func dispatch(ctx context.Context, catalog catalogStore, term terminal, cmd string, args []string) error {
	switch cmd {
	case "list":
		return listCmd(ctx, catalog, term, args)
	case "show":
		return showCmd(ctx, catalog, term, args)
	case "add":
		return addCmd(ctx, catalog, term, args)
	case "edit":
		return editCmd(ctx, catalog, term, args)
	case "delete":
		return deleteCmd(ctx, catalog, term, args)
	}
	_, _ = fmt.Fprintf(term.err, "unknown command %q\n", cmd)
	return errUsage
}

func listCmd(ctx context.Context, catalog view.Catalog, term terminal, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	list := view.NewProductList(catalog, term.out, nil)
	list.Mount(ctx)
	defer list.Unmount()
	if err := list.Render(); err != nil {
		return err
	}
	if catalog.Snapshot().Error != "" {
		return errFailed
	}
	return nil
}

func showCmd(ctx context.Context, catalog view.Catalog, term terminal, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	p, ok := catalog.LoadOne(ctx, args[0])
	if !ok {
		msg := catalog.Snapshot().Error
		if msg == "" {
			msg = fmt.Sprintf("Product with ID %s not found.", args[0])
		}
		_, _ = fmt.Fprintf(term.out, "Error: %s\n", msg)
		return errFailed
	}
	return view.RenderProduct(term.out, p)
}

// productFlags are the form fields settable from the command line.
type productFlags struct {
	fs     *flag.FlagSet
	fields map[string]*string
}

func newProductFlags(name string, term terminal) *productFlags {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(term.err)
	pf := &productFlags{fs: fs, fields: map[string]*string{}}
	pf.fields[view.FieldName] = fs.String(view.FieldName, "", "product name")
	pf.fields[view.FieldDescription] = fs.String(view.FieldDescription, "", "product description")
	pf.fields[view.FieldPrice] = fs.String(view.FieldPrice, "", "product price")
	return pf
}

// apply sets the flags given on the command line, leaving the other fields as they are.
func (pf *productFlags) apply(form *view.ProductForm) error {
	var err error
	pf.fs.Visit(func(f *flag.Flag) {
		if setErr := form.Set(f.Name, *pf.fields[f.Name]); setErr != nil && err == nil {
			err = setErr
		}
	})
	return err
}

func addCmd(ctx context.Context, catalog catalogStore, term terminal, args []string) error {
	pf := newProductFlags("add", term)
	if err := pf.fs.Parse(args); err != nil {
		return err
	}
	if pf.fs.NArg() != 0 {
		return errUsage
	}
	catalog.Start(ctx)
	list := view.NewProductList(catalog, term.out, nil)
	defer list.Unmount()

	form := view.NewCreateForm(catalog, view.NewListNavigator(term.out, list), term.out)
	defer form.Unmount()
	return submit(ctx, form, pf, term)
}

func editCmd(ctx context.Context, catalog catalogStore, term terminal, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	id := args[0]
	pf := newProductFlags("edit", term)
	if err := pf.fs.Parse(args[1:]); err != nil {
		return err
	}
	if pf.fs.NArg() != 0 {
		return errUsage
	}
	catalog.Start(ctx)
	list := view.NewProductList(catalog, term.out, nil)
	defer list.Unmount()

	form := view.NewEditForm(catalog, view.NewListNavigator(term.out, list), term.out, id)
	defer form.Unmount()
	if !form.Mount(ctx) {
		return errFailed
	}
	return submit(ctx, form, pf, term)
}

func submit(ctx context.Context, form *view.ProductForm, pf *productFlags, term terminal) error {
	if err := pf.apply(form); err != nil {
		_, _ = fmt.Fprintf(term.out, "Error: %v\n", err)
		return errFailed
	}
	if !form.Submit(ctx) {
		return errFailed
	}
	return nil
}

func deleteCmd(ctx context.Context, catalog catalogStore, term terminal, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	fs.SetOutput(term.err)
	yes := fs.Bool("yes", false, "delete without asking for confirmation")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errUsage
	}

	var confirmer view.Confirmer = view.NewPromptConfirmer(term.in, term.out)
	if *yes {
		confirmer = view.ConfirmFunc(func(string) bool { return true })
	}
	catalog.Start(ctx)
	list := view.NewProductList(catalog, term.out, confirmer)
	defer list.Unmount()

	if !list.RequestDelete(ctx, fs.Arg(0)) {
		return errFailed
	}
	view.NewListNavigator(term.out, list).ToList("Product deleted.")
	return nil
}
