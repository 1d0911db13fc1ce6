package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"webui/internal/domain/jsoncfg"
	"webui/internal/i18n"
	"webui/internal/imaging"
	"webui/internal/infra"
	"webui/internal/infra/credentials"
	"webui/internal/modelscope"
	"webui/internal/storage"
)

// env holds what every subcommand needs.
type env struct {
	settings jsoncfg.Settings
	tokens   *credentials.Store
	client   *modelscope.Client
}

func setup() (*env, error) {
	_ = godotenv.Load()
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := infra.NewLogger(cfg.AppEnv)
	settings, err := jsoncfg.Load(cfg.SettingsPath)
	if err != nil {
		logger.Debug().Err(err).Msg("using default settings")
	}
	files, err := storage.NewFileStore(cfg.TokenDir)
	if err != nil {
		return nil, err
	}
	caps := infra.ProbeCapabilities(cfg)
	return &env{
		settings: settings,
		tokens:   credentials.NewStore(files, caps, &logger),
		client: modelscope.NewClient(modelscope.Options{
			APIBase:   cfg.APIBaseURL,
			UploadURL: cfg.UploadURL,
			Settings:  settings,
			TempDir:   os.TempDir(),
			Logger:    &logger,
		}),
	}, nil
}

func (e *env) token(ctx context.Context, flag string) string {
	if t := strings.TrimSpace(flag); t != "" {
		return t
	}
	if t := strings.TrimSpace(os.Getenv("MODELSCOPE_TOKEN")); t != "" {
		return t
	}
	return e.tokens.Load(ctx)
}

func withLocale(ctx context.Context, lang string) context.Context {
	if lang == "" {
		lang = os.Getenv("LANG")
	}
	// POSIX locales look like zh_CN.UTF-8
	lang = strings.ReplaceAll(strings.SplitN(lang, ".", 2)[0], "_", "-")
	return i18n.WithLocale(ctx, i18n.Match(lang))
}

func writeResult(out modelscope.Outcome, path string) error {
	if !out.OK() {
		return errors.New(out.Message)
	}
	data, err := imaging.EncodePNG(out.Image)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	fmt.Println(out.Message)
	fmt.Println(path)
	return nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "msctl",
		Short:         "Run ModelScope image, edit and token operations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("token", "", "API token (defaults to MODELSCOPE_TOKEN or the saved token)")
	root.PersistentFlags().String("lang", "", "Message language, en or zh")
	root.AddCommand(newGenerateCmd(), newEditCmd(), newTokenCmd())
	return root
}

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Generate an image from a prompt",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			s := e.settings
			flags := cmd.Flags()
			params := modelscope.GenerateParams{
				Model:          s.DefaultModel,
				Prompt:         s.DefaultPrompt,
				NegativePrompt: s.DefaultNegativePrompt,
				Width:          s.DefaultWidth,
				Height:         s.DefaultHeight,
				Steps:          s.DefaultSteps,
				Guidance:       s.DefaultGuidance,
				Seed:           s.DefaultSeed,
			}
			if len(args) == 1 {
				params.Prompt = args[0]
			}
			overrideString(cmd, "model", &params.Model)
			overrideString(cmd, "negative", &params.NegativePrompt)
			overrideInt(cmd, "width", &params.Width)
			overrideInt(cmd, "height", &params.Height)
			overrideInt(cmd, "steps", &params.Steps)
			overrideInt(cmd, "seed", &params.Seed)
			if flags.Changed("guidance") {
				params.Guidance, _ = flags.GetFloat64("guidance")
			}
			tokenFlag, _ := cmd.Flags().GetString("token")
			lang, _ := cmd.Flags().GetString("lang")
			ctx := withLocale(cmd.Context(), lang)
			params.Token = e.token(ctx, tokenFlag)

			output, _ := flags.GetString("output")
			return writeResult(e.client.Generate(ctx, params), output)
		},
	}
	registerJobFlags(cmd)
	cmd.Flags().Int("width", 0, "Image width")
	cmd.Flags().Int("height", 0, "Image height")
	return cmd
}

func newEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <image> [prompt]",
		Short: "Edit an image with a prompt",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			src, _, err := imaging.Decode(raw)
			if err != nil {
				return err
			}
			s := e.settings
			flags := cmd.Flags()
			params := modelscope.EditParams{
				Model:          s.EditModel(),
				Image:          src,
				Prompt:         jsoncfg.DefaultEditPrompt,
				NegativePrompt: s.DefaultNegativePrompt,
				Adaptive:       true,
				LongEdge:       jsoncfg.DefaultLongEdge,
				Width:          s.DefaultWidth,
				Height:         s.DefaultHeight,
				Steps:          s.DefaultSteps,
				Guidance:       s.DefaultGuidance,
				Seed:           s.DefaultSeed,
			}
			if len(args) == 2 {
				params.Prompt = args[1]
			}
			overrideString(cmd, "model", &params.Model)
			overrideString(cmd, "negative", &params.NegativePrompt)
			overrideInt(cmd, "long-edge", &params.LongEdge)
			overrideInt(cmd, "steps", &params.Steps)
			overrideInt(cmd, "seed", &params.Seed)
			if flags.Changed("size") {
				size, _ := flags.GetString("size")
				if _, err := fmt.Sscanf(size, "%dx%d", &params.Width, &params.Height); err != nil {
					return fmt.Errorf("invalid --size %q, want WIDTHxHEIGHT", size)
				}
				params.Adaptive = false
			}
			if flags.Changed("guidance") {
				params.Guidance, _ = flags.GetFloat64("guidance")
			}
			tokenFlag, _ := flags.GetString("token")
			lang, _ := flags.GetString("lang")
			ctx := withLocale(cmd.Context(), lang)
			params.Token = e.token(ctx, tokenFlag)

			output, _ := flags.GetString("output")
			return writeResult(e.client.Edit(ctx, params), output)
		},
	}
	registerJobFlags(cmd)
	cmd.Flags().Int("long-edge", 0, "Long edge of the adaptive output size")
	cmd.Flags().String("size", "", "Fixed output size WIDTHxHEIGHT, disables adaptive sizing")
	return cmd
}

func registerJobFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "output.png", "Where to write the PNG result")
	cmd.Flags().String("model", "", "Model id")
	cmd.Flags().String("negative", "", "Negative prompt")
	cmd.Flags().Int("steps", 0, "Sampling steps")
	cmd.Flags().Float64("guidance", 0, "Guidance scale")
	cmd.Flags().Int("seed", 0, "Random seed (-1 for random)")
}

func overrideString(cmd *cobra.Command, name string, dst *string) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetString(name)
	}
}

func overrideInt(cmd *cobra.Command, name string, dst *int) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetInt(name)
	}
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the saved API token",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "save <token>",
			Short: "Save the API token locally",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runTokenSave(cmd, args[0])
			},
		},
		&cobra.Command{
			Use:   "delete",
			Short: "Delete the saved API token",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				e, err := setup()
				if err != nil {
					return err
				}
				if err := e.tokens.Delete(cmd.Context()); err != nil {
					return err
				}
				lang, _ := cmd.Flags().GetString("lang")
				fmt.Println(i18n.FromContext(withLocale(cmd.Context(), lang)).Sprintf(i18n.MsgTokenDeleted))
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Report whether a token is saved",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				e, err := setup()
				if err != nil {
					return err
				}
				fmt.Printf("saved: %t\nencrypted: %t\n", e.tokens.Saved(cmd.Context()), e.tokens.Encrypted())
				return nil
			},
		},
	)
	return cmd
}

func runTokenSave(cmd *cobra.Command, token string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	lang, _ := cmd.Flags().GetString("lang")
	ctx := withLocale(cmd.Context(), lang)
	p := i18n.FromContext(ctx)
	switch e.tokens.HandleSave(ctx, token, true) {
	case credentials.ActionSaved:
		fmt.Println(p.Sprintf(i18n.MsgTokenSaved))
	case credentials.ActionSaveFailed:
		return errors.New(p.Sprintf(i18n.MsgTokenSaveFailed))
	case credentials.ActionDeleted:
		fmt.Println(p.Sprintf(i18n.MsgTokenDeleted))
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
