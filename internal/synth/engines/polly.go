package engines

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/speakdoc/internal/synth"
)

// DefaultRegion is used when no region is configured.
const DefaultRegion = "us-east-1"

// pollyClient is the subset of the Polly API used by PollyEngine.
type pollyClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// PollyEngine synthesizes speech with Amazon Polly. Credentials come from
// the standard AWS chain (environment, shared config, instance role).
type PollyEngine struct {
	client pollyClient
	region string
}

// PollyConfig holds configuration for the Polly engine.
type PollyConfig struct {
	// Region defaults to us-east-1
	Region string

	// Profile selects a shared config profile; empty uses the default chain.
	Profile string
}

// NewPollyEngine creates a Polly engine from the ambient AWS configuration.
func NewPollyEngine(ctx context.Context, cfg PollyConfig) (*PollyEngine, error) {
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	log.Debug("Polly engine configured", "region", cfg.Region, "profile", cfg.Profile)
	return &PollyEngine{client: polly.NewFromConfig(awsCfg), region: cfg.Region}, nil
}

// Synthesize implements synth.Backend.
func (e *PollyEngine) Synthesize(ctx context.Context, req synth.Request) ([]byte, error) {
	out, err := e.client.SynthesizeSpeech(ctx, speechInput(req))
	if err != nil {
		return nil, fmt.Errorf("polly: %w", err)
	}
	if out.AudioStream == nil {
		return nil, errors.New("polly: response has no audio stream")
	}
	defer out.AudioStream.Close() //nolint:errcheck

	audio, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return nil, fmt.Errorf("polly: failed to read audio stream: %w", err)
	}
	return audio, nil
}

// Region returns the region requests are sent to.
func (e *PollyEngine) Region() string {
	return e.region
}

func speechInput(req synth.Request) *polly.SynthesizeSpeechInput {
	in := &polly.SynthesizeSpeechInput{
		OutputFormat: types.OutputFormat(req.Format),
		Text:         aws.String(req.Text),
		VoiceId:      types.VoiceId(req.Voice),
	}
	if req.TextType != "" {
		in.TextType = types.TextType(req.TextType)
	}
	if req.Engine != "" {
		in.Engine = types.Engine(req.Engine)
	}
	if req.LanguageCode != "" {
		in.LanguageCode = types.LanguageCode(req.LanguageCode)
	}
	if len(req.Lexicons) > 0 {
		in.LexiconNames = req.Lexicons
	}
	if req.SampleRate > 0 {
		in.SampleRate = aws.String(strconv.Itoa(req.SampleRate))
	}
	return in
}
