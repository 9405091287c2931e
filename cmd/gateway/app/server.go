package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	utilserrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/component-base/version"
	"k8s.io/component-base/version/verflag"
	"k8s.io/klog/v2"

	"modbusgateway/cmd/gateway/options"
	"modbusgateway/pkg/generic"
	baseoptions "modbusgateway/pkg/generic/options"
	"modbusgateway/pkg/web"
)

const ComponentGateway = "modbus-gateway"

func NewGatewayCmd() *cobra.Command {
	fs := pflag.NewFlagSet(ComponentGateway, pflag.ContinueOnError)
	o := options.NewDefaultOptions()
	cmd := &cobra.Command{
		Use:  ComponentGateway,
		Long: `The modbus gateway polls a modbus device for linked attributes and writes attribute values back to it.`,
		// flags are parsed by fs, cobra would mix in its global flags
		DisableFlagParsing: true,
		SilenceUsage:       true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := fs.Parse(args); err != nil {
				_ = cmd.Usage()
				return err
			}
			if rest := fs.Args(); len(rest) > 0 {
				_ = cmd.Usage()
				return fmt.Errorf("unknown command %q", rest[0])
			}

			if done, err := baseoptions.PrintHelpIfRequested(cmd, fs); done || err != nil {
				return err
			}
			if done, err := baseoptions.PrintDefaultConfigIfRequested(cmd.OutOrStdout(), options.NewDefaultOptions(), fs); done || err != nil {
				return err
			}
			verflag.PrintAndExitIfRequested()

			if err := baseoptions.ParseAndApplyConfigFile(o, args); err != nil {
				return err
			}
			if errs := options.Validate(o); len(errs) != 0 {
				return utilserrors.NewAggregate(errs)
			}

			klog.InfoS("Starting", "component", ComponentGateway, "version", version.Get().GitVersion)
			return run(cmd.Context(), o)
		},
	}

	verflag.AddFlags(fs)
	o.AddFlags(fs)
	o.AddBaseFlags(cmd, fs)
	return cmd
}

// run serves until SIGINT or SIGTERM, then shuts down within the graceful timeout.
func run(ctx context.Context, o *options.Options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := o.Config(ctx)
	if err != nil {
		return err
	}
	server := web.NewServer(generic.Default(), o.Port, c)
	shutdown, err := server.Serve()
	if err != nil {
		_ = c.Protocol.Stop(context.Background())
		return err
	}
	klog.V(1).InfoS("Server started", "port", o.Port, "agent", c.Protocol.GetAgentId())

	<-ctx.Done()
	klog.V(1).InfoS("Shutting down", "timeout", o.Wait.Duration)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), o.Wait.Duration)
	defer cancel()
	shutdown(shutdownCtx)
	return nil
}
