package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kursadbilgin/sms-dispatch/internal/backend"
	"github.com/kursadbilgin/sms-dispatch/internal/config"
	"github.com/kursadbilgin/sms-dispatch/internal/observability"
	"github.com/kursadbilgin/sms-dispatch/internal/operator"
	"github.com/kursadbilgin/sms-dispatch/internal/recipient"
	"github.com/kursadbilgin/sms-dispatch/internal/session"
	"github.com/kursadbilgin/sms-dispatch/internal/upload"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// console holds the operator-side components for one command invocation.
type console struct {
	cfg     *config.ClientConfig
	logger  *zap.Logger
	session *session.Session
	client  *backend.Client

	workspace    *operator.Workspace
	uploader     *operator.Uploader
	orchestrator *operator.Orchestrator
	resends      *operator.ResendCoordinator
	exports      *operator.ExportWriter
}

var (
	app       *console
	exportDir string
)

var rootCmd = &cobra.Command{
	Use:           "smsctl",
	Short:         "Operator console for the SMS dispatch API",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadClient()
		if err != nil {
			return err
		}
		if exportDir != "" {
			cfg.ExportDir = exportDir
		}
		c, err := newConsole(cfg)
		if err != nil {
			return err
		}
		app = c
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&exportDir, "export-dir", "", "directory for exported workbooks (overrides EXPORT_DIR)")
}

func newConsole(cfg *config.ClientConfig) (*console, error) {
	logger, err := observability.NewLogger("smsctl", cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	sess, err := session.New(cfg.DispatchToken)
	if err != nil {
		return nil, err
	}

	client, err := backend.NewClient(cfg.DispatchURL, sess, logger.Named("backend"))
	if err != nil {
		return nil, fmt.Errorf("dispatch api client init failed: %w", err)
	}

	extractor, err := recipient.NewExtractor(cfg.Numbers.FieldMapping(), cfg.Numbers.Normalizer())
	if err != nil {
		return nil, fmt.Errorf("recipient extractor init failed: %w", err)
	}

	parser, err := upload.NewParser(cfg.Numbers.FieldMapping(), logger.Named("upload"))
	if err != nil {
		return nil, fmt.Errorf("upload parser init failed: %w", err)
	}

	guards := operator.NewGuards()
	workspace := operator.NewWorkspace(extractor)

	uploader, err := operator.NewUploader(parser, workspace, guards, logger.Named("upload"))
	if err != nil {
		return nil, err
	}
	orchestrator, err := operator.NewOrchestrator(client, extractor, workspace, guards, logger.Named("dispatch"))
	if err != nil {
		return nil, err
	}
	resends, err := operator.NewResendCoordinator(client, guards, logger.Named("resend"))
	if err != nil {
		return nil, err
	}
	exports, err := operator.NewExportWriter(client, workspace, guards, cfg.ExportDir, logger.Named("export"))
	if err != nil {
		return nil, err
	}

	return &console{
		cfg:          cfg,
		logger:       logger,
		session:      sess,
		client:       client,
		workspace:    workspace,
		uploader:     uploader,
		orchestrator: orchestrator,
		resends:      resends,
		exports:      exports,
	}, nil
}

func (c *console) close() {
	c.session.Close()
	_ = c.logger.Sync()
}

// commandContext is cancelled on SIGINT or SIGTERM. Every API call made by
// one command shares its correlation id.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	parent, _ = observability.EnsureCorrelationID(parent)
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
