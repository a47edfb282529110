// Command firehose-adapter runs the Firehose v2 streaming adapter: the
// gRPC Stream service (core/server) backed by the three-phase engine
// (core/stream) over a portal adapter and an optional RPC node adapter,
// plus the admin/observability HTTP surface (core/web).
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/viper"
	"github.com/urfave/cli"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	pbfirehose "github.com/streamingfast/pbgo/sf/firehose/v2"

	"github.com/smartcontractkit/chainlink-firehose/core/adapter/portal"
	"github.com/smartcontractkit/chainlink-firehose/core/adapter/rpcnode"
	"github.com/smartcontractkit/chainlink-firehose/core/config"
	"github.com/smartcontractkit/chainlink-firehose/core/logger"
	"github.com/smartcontractkit/chainlink-firehose/core/server"
	"github.com/smartcontractkit/chainlink-firehose/core/stream"
	"github.com/smartcontractkit/chainlink-firehose/core/utils"
	"github.com/smartcontractkit/chainlink-firehose/core/web"
)

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		logger.Default.Fatal(err)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "firehose-adapter"
	app.Usage = "Firehose v2 streaming adapter for an Ethereum-compatible chain"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "portal-url", Usage: "archive portal base URL", EnvVar: "FIREHOSE_PORTAL_URL"},
		cli.StringFlag{Name: "rpc-http-url", Usage: "JSON-RPC HTTP endpoint", EnvVar: "FIREHOSE_RPC_HTTP_URL"},
		cli.StringFlag{Name: "rpc-ws-url", Usage: "JSON-RPC WebSocket endpoint", EnvVar: "FIREHOSE_RPC_WS_URL"},
		cli.Int64Flag{Name: "finality-confirmations", Usage: "blocks behind head considered final"},
		cli.Int64Flag{Name: "portal-refresh-seconds", Usage: "portal finalized-height cache refresh interval", Value: 10},
		cli.BoolFlag{Name: "dev", Usage: "use a human-readable development logger"},
	}
	app.Commands = []cli.Command{
		runCommand(),
		infoCommand(),
	}
	return app
}

func runCommand() cli.Command {
	return cli.Command{
		Name:  "run",
		Usage: "start the gRPC server and admin HTTP surface",
		Action: func(c *cli.Context) error {
			cfg, log, err := resolveConfig(c)
			if err != nil {
				return err
			}
			return run(cfg, log)
		},
	}
}

func infoCommand() cli.Command {
	return cli.Command{
		Name:  "info",
		Usage: "print the resolved configuration",
		Action: func(c *cli.Context) error {
			cfg, _, err := resolveConfig(c)
			if err != nil {
				return err
			}
			printInfo(cfg)
			return nil
		},
	}
}

func resolveConfig(c *cli.Context) (config.Config, logger.Logger, error) {
	v := viper.New()
	v.Set("portal_url", c.GlobalString("portal-url"))
	v.Set("rpc_http_url", c.GlobalString("rpc-http-url"))
	v.Set("rpc_ws_url", c.GlobalString("rpc-ws-url"))
	v.Set("portal_refresh_seconds", c.GlobalInt64("portal-refresh-seconds"))
	if c.GlobalInt64("finality-confirmations") > 0 {
		v.Set("finality_confirmations", c.GlobalInt64("finality-confirmations"))
	}

	cfg, err := config.Load(v)
	if err != nil {
		return config.Config{}, nil, err
	}

	log := logger.New()
	if c.GlobalBool("dev") {
		log = logger.NewDevelopment()
	}
	logger.SetLogger(log)
	return cfg, log, nil
}

func printInfo(cfg config.Config) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"setting", "value"})
	table.Append([]string{"listen address", config.ListenAddr})
	table.Append([]string{"portal url", cfg.PortalURL})
	table.Append([]string{"rpc http url", cfg.RPCHTTPURL})
	table.Append([]string{"rpc ws url", cfg.RPCWSURL})
	table.Append([]string{"finality confirmations", fmt.Sprintf("%v", cfg.FinalityConfirmations.Ptr())})
	table.Append([]string{"has rpc adapter", fmt.Sprintf("%v", cfg.HasRPC())})
	table.Render()
}

func run(cfg config.Config, log logger.Logger) error {
	portalSource := portal.New(portal.Config{
		BaseURL:         cfg.PortalURL,
		RefreshInterval: time.Duration(cfg.PortalRefreshSeconds) * time.Second,
	}, http.DefaultClient, log)

	var rpcSource *rpcnode.Source
	if cfg.HasRPC() {
		rpcSource = rpcnode.New(rpcnode.Config{
			HTTPURL:               cfg.RPCHTTPURL,
			WSURL:                 cfg.RPCWSURL,
			FinalityConfirmations: uint64(cfg.FinalityConfirmations.Int64),
		}, http.DefaultClient, log)
	}
	defer func() {
		if cerr := closeSources(portalSource, rpcSource); cerr != nil {
			log.Errorw("error closing source adapters", "error", cerr)
		}
	}()

	if err := waitReady(portalSource, rpcSource, log); err != nil {
		return err
	}

	var engine *stream.Engine
	if rpcSource != nil {
		engine = stream.New(portalSource, rpcSource, log)
	} else {
		engine = stream.New(portalSource, nil, log)
	}

	registry := web.NewSubscriptionRegistry()
	srv := server.New(engine, log)
	srv.Registry = registry

	grpcServer := grpc.NewServer()
	pbfirehose.RegisterStreamServer(grpcServer, srv)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", config.ListenAddr)
	if err != nil {
		return err
	}

	router, err := web.NewRouter(web.RouterConfig{
		MaxRequestBytes:    1 << 20,
		RateLimitPerMinute: 600,
	}, registry, log)
	if err != nil {
		return err
	}
	adminAddr := adminListenAddr(config.ListenAddr)
	adminServer := &http.Server{Addr: adminAddr, Handler: router}

	g, gctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		log.Infow("starting admin http surface", "addr", adminAddr)
		return adminServer.ListenAndServe()
	})
	g.Go(func() error {
		log.Infow("starting grpc server", "addr", config.ListenAddr)
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		// if either server fails, tear the other down so Wait returns.
		<-gctx.Done()
		grpcServer.Stop()
		return adminServer.Close()
	})
	return g.Wait()
}

// closeSources closes whichever source adapters were constructed,
// collecting their errors.
func closeSources(portalSource *portal.Source, rpcSource *rpcnode.Source) error {
	err := portalSource.Close()
	if rpcSource != nil {
		err = multierr.Append(err, rpcSource.Close())
	}
	return err
}

// waitReady starts both configured adapters concurrently and blocks until
// each has reported readiness (its first successful finalized-height
// query), gating phase A of the streaming engine on that readiness instead
// of racing it.
func waitReady(portalSource *portal.Source, rpcSource *rpcnode.Source, log logger.Logger) error {
	awaiter := utils.NewDependentAwaiter()
	startErrs := make(chan error, 2)

	awaiter.AddDependents(1)
	go func() {
		defer awaiter.DependentReady()
		log.Infow("starting portal adapter")
		if err := portalSource.Start(); err != nil {
			startErrs <- err
		}
	}()

	if rpcSource != nil {
		awaiter.AddDependents(1)
		go func() {
			defer awaiter.DependentReady()
			log.Infow("starting rpc node adapter")
			if err := rpcSource.Start(); err != nil {
				startErrs <- err
			}
		}()
	}

	select {
	case err := <-startErrs:
		return err
	case <-awaiter.AwaitDependents():
		// DependentReady is deferred until after a failing Start has
		// already queued its error, so a non-blocking check here can't
		// miss one racing against this channel's close.
		select {
		case err := <-startErrs:
			return err
		default:
			return nil
		}
	}
}

// adminListenAddr derives the admin surface's port from the fixed gRPC
// listen address, one above it.
func adminListenAddr(grpcAddr string) string {
	host, port, err := net.SplitHostPort(grpcAddr)
	if err != nil {
		return ":13043"
	}
	var p int
	fmt.Sscanf(port, "%d", &p)
	return fmt.Sprintf("%s:%d", host, p+1)
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}
