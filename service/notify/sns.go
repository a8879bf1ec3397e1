package notify

import (
	"context"
	"fmt"
	"io/ioutil"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"github.com/kirsrus/safetywatch/model"
)

const publishTimeout = 10 * time.Second

// Part of the SNS client used here
type publisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Sns publishes escalated alerts to an SNS topic. Built with NewSns
type Sns struct {
	ctx      context.Context
	log      *logrus.Entry
	client   publisher
	topicArn string
	timeout  time.Duration
}

// ConfigSns configuration of Sns
type ConfigSns struct {
	Log      *logrus.Logger
	Region   string
	TopicArn string
	// Timeout of one publish call
	Timeout time.Duration
}

// NewSns constructor of Sns. Credentials come from the default AWS chain
func NewSns(ctx context.Context, config *ConfigSns) (*Sns, error) {
	if config == nil {
		return nil, errors.New("config is not set")
	}
	if config.TopicArn == "" {
		return nil, errors.NotValidf("empty topic ARN")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}

	cfg, err := awsConfig.LoadDefaultConfig(ctx, awsConfig.WithRegion(config.Region))
	if err != nil {
		return nil, errors.Annotate(err, "unable to load AWS config")
	}

	res := &Sns{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "notify",
			"scope":  "service",
		}),
		client:   sns.NewFromConfig(cfg),
		topicArn: config.TopicArn,
		timeout:  publishTimeout,
	}
	if config.Timeout != 0 {
		res.timeout = config.Timeout
	}
	return res, nil
}

// AlertEscalated publishes the alert to the topic
func (m *Sns) AlertEscalated(alert model.Alert) error {
	ctx, cancel := context.WithTimeout(m.ctx, m.timeout)
	defer cancel()

	subject, message := formatAlert(alert)
	out, err := m.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(m.topicArn),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"priority":  {DataType: aws.String("String"), StringValue: aws.String(string(alert.Priority))},
			"worker_id": {DataType: aws.String("String"), StringValue: aws.String(alert.WorkerID)},
		},
	})
	if err != nil {
		return errors.Annotatef(err, "publish of alert %d", alert.ID)
	}
	m.log.Infof("alert %d published as %s", alert.ID, aws.ToString(out.MessageId))
	return nil
}

func formatAlert(alert model.Alert) (string, string) {
	subject := fmt.Sprintf("Safety alert escalated: %s", alert.WorkerID)
	message := fmt.Sprintf(
		"Escalated safety alert\n\n"+
			"Alert: %d\n"+
			"Worker: %s\n"+
			"Type: %s\n"+
			"Priority: %s\n"+
			"Reason: %s\n"+
			"Raised: %s\n\n"+
			"Not acknowledged within the escalation window.",
		alert.ID,
		alert.WorkerID,
		alert.Type,
		alert.Priority,
		alert.Reason,
		alert.Timestamp.Format(time.RFC3339),
	)
	return subject, message
}
