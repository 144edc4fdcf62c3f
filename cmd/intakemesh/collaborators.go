package main

import (
	"context"
	"fmt"
	"net/url"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/hupe1980/intakemesh"
	"github.com/hupe1980/intakemesh/artifact/s3"
	"github.com/hupe1980/intakemesh/assist"
	"github.com/hupe1980/intakemesh/config"
	"github.com/hupe1980/intakemesh/core"
	"github.com/hupe1980/intakemesh/logging"
	"github.com/hupe1980/intakemesh/model"
	"github.com/hupe1980/intakemesh/model/anthropic"
	"github.com/hupe1980/intakemesh/model/openai"
	"github.com/hupe1980/intakemesh/notify"
)

// collaborators are the optional external services selected by config.
type collaborators struct {
	mediaStore core.MediaStore
	classifier core.Classifier
	assistant  core.Assistant
	notifier   core.Notifier
}

func (c collaborators) apply(o *intakemesh.Options) {
	o.MediaStore = c.mediaStore
	o.Classifier = c.classifier
	o.Assistant = c.assistant
	o.Notifier = c.notifier
}

func buildCollaborators(ctx context.Context, cfg config.Config, logger *logging.IntakeLogger) (collaborators, error) {
	var c collaborators

	if cfg.Twilio.Enabled() {
		c.notifier = notify.NewRetrying(&notify.Twilio{
			AccountSID: cfg.Twilio.AccountSID,
			AuthToken:  cfg.Twilio.AuthToken,
			From:       cfg.Twilio.From,
			BaseURL:    cfg.Twilio.BaseURL,
		}, func(o *notify.RetryOptions) {
			o.Timeout = cfg.Timeouts.Notify
			o.Logger = logger.WithComponent("notify")
		})
	} else {
		c.notifier = notify.Log{Logger: logger.WithComponent("notify")}
	}

	if cfg.S3.Enabled() {
		store, err := newS3Store(ctx, cfg)
		if err != nil {
			return collaborators{}, err
		}
		c.mediaStore = store
	}

	m, err := newModel(cfg.Model)
	if err != nil {
		return collaborators{}, err
	}
	if m != nil {
		c.classifier = assist.NewClassifier(m, func(o *assist.ClassifierOptions) {
			o.Timeout = cfg.Timeouts.Classify
			o.Logger = logger.WithComponent("classifier")
		})
		c.assistant = assist.NewAssistant(m, func(o *assist.AssistantOptions) {
			o.Timeout = cfg.Timeouts.Assist
			o.Logger = logger.WithComponent("assistant")
		})
	}

	return c, nil
}

func newS3Store(ctx context.Context, cfg config.Config) (*s3.Store, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.S3.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.S3.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
		}
		o.UsePathStyle = cfg.S3.UsePathStyle
	})

	return s3.New(client, cfg.S3.Bucket, func(o *s3.Options) {
		o.Prefix = cfg.S3.Prefix
		o.PublicBaseURL = cfg.S3.PublicBaseURL
		o.MaxBytes = cfg.S3.MaxBytes
		o.SourceUser = cfg.Twilio.AccountSID
		o.SourcePassword = cfg.Twilio.AuthToken
		o.SourceHosts = mediaHosts(cfg.Twilio)
		o.Presigner = awss3.NewPresignClient(client)
	}), nil
}

// mediaHosts are the hosts serving inbound provider media.
func mediaHosts(t config.Twilio) []string {
	hosts := []string{"api.twilio.com"}
	if u, err := url.Parse(t.BaseURL); err == nil && u.Hostname() != "" {
		hosts = append(hosts, u.Hostname())
	}
	return hosts
}

func newModel(cfg config.Model) (model.Model, error) {
	switch cfg.Provider {
	case config.ProviderNone:
		return nil, nil
	case config.ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
			o.Temperature = cfg.Temp
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
		}), nil
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
			o.Temperature = cfg.Temp
			if cfg.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Name)
			}
		}), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}
