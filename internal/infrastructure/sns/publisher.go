package sns

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/gradpath-api/internal/config"
)

// Publisher delivers verification notifications by publishing to an
// SNS topic (typically fanned out to an email subscription or a
// downstream mail worker). Used instead of direct SMTP when
// SNS_TOPIC_ARN is configured.
type Publisher struct {
	client      *sns.Client
	topicARN    string
	frontendURL string
}

func NewPublisher(cfg *config.Config) (*Publisher, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}
	if cfg.AWSAccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, err
	}
	return &Publisher{
		client:      sns.NewFromConfig(awsCfg),
		topicARN:    cfg.SNSTopicARN,
		frontendURL: cfg.FrontendURL,
	}, nil
}

// SendVerification publishes the verification link to the topic. The
// ctx deadline bounds the publish call.
func (p *Publisher) SendVerification(ctx context.Context, email, fullName, rawToken string) error {
	link := fmt.Sprintf("%s/verify-email/%s", p.frontendURL, rawToken)
	msg := fmt.Sprintf("Hi %s, please confirm your email address within 24 hours: %s", fullName, link)
	_, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Subject:  aws.String("Verify your email"),
		Message:  aws.String(msg),
	})
	if err != nil {
		return fmt.Errorf("publish verification for %s: %w", email, err)
	}
	return nil
}
