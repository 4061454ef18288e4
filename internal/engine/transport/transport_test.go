package transport

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-engine/internal/common/logger"
	"notification-engine/internal/models"
)

// ==========================
// Mock Implementations
// ==========================

type MockSNSService struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
	calls       int
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.calls++
	return m.PublishFunc(ctx, params, optFns...)
}

type MockSQSService struct {
	SendMessageFunc func(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

func (m *MockSQSService) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	return m.SendMessageFunc(ctx, params, optFns...)
}

type MockSESService struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func (m *MockSESService) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	return m.SendEmailFunc(ctx, params, optFns...)
}

func testMessage() Message {
	return Message{
		DeliveryID:  "dlv-1",
		Fingerprint: "fp-abc",
		JobID:       "J1",
		Recipient:   models.CanonicalRecipient{RecipientID: "staff:s1", Kind: "staff", Source: "staff:s1"},
		EventType:   models.EventAssigned,
		Priority:    models.PriorityHigh,
		Channel:     models.ChannelBanner,
		Payload:     map[string]interface{}{"site": "Depot 4"},
	}
}

// ==========================
// Tests
// ==========================

func TestSNSSender_PublishesEnvelope(t *testing.T) {
	var captured *sns.PublishInput
	api := &MockSNSService{PublishFunc: func(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
		captured = in
		return &sns.PublishOutput{MessageId: aws.String("sns-1")}, nil
	}}

	receipt, err := NewSNSSender(api, "arn:aws:sns:us-east-1:123:staff-push", nil).Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, "sns-1", receipt.ProviderMessageID)
	assert.Equal(t, 1, api.calls)

	require.NotNil(t, captured)
	assert.Nil(t, captured.MessageDeduplicationId, "standard topics take no dedup id")
	assert.Equal(t, "staff:s1", aws.ToString(captured.MessageAttributes["recipientId"].StringValue))
	assert.Equal(t, "banner", aws.ToString(captured.MessageAttributes["channel"].StringValue))

	var env envelope
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(captured.Message)), &env))
	assert.Equal(t, "New job assigned", env.Title)
	assert.Equal(t, "Job J1 has been assigned to you.", env.Body)
	assert.Equal(t, "fp-abc", env.Fingerprint)
}

func TestSNSSender_FIFOTopicUsesFingerprint(t *testing.T) {
	var captured *sns.PublishInput
	api := &MockSNSService{PublishFunc: func(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
		captured = in
		return &sns.PublishOutput{MessageId: aws.String("sns-2")}, nil
	}}

	_, err := NewSNSSender(api, "arn:aws:sns:us-east-1:123:staff-push.fifo", nil).Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, "fp-abc", aws.ToString(captured.MessageDeduplicationId))
	assert.Equal(t, "staff:s1", aws.ToString(captured.MessageGroupId))
}

func TestSNSSender_ErrorIsReturnedOnce(t *testing.T) {
	api := &MockSNSService{PublishFunc: func(context.Context, *sns.PublishInput, ...func(*sns.Options)) (*sns.PublishOutput, error) {
		return nil, errors.New("InternalError")
	}}

	_, err := NewSNSSender(api, "arn:aws:sns:us-east-1:123:staff-push", nil).Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.Equal(t, 1, api.calls, "senders never retry")
}

func TestSQSSender_SendsToInbox(t *testing.T) {
	var captured *sqs.SendMessageInput
	api := &MockSQSService{SendMessageFunc: func(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
		captured = in
		return &sqs.SendMessageOutput{MessageId: aws.String("sqs-1")}, nil
	}}

	receipt, err := NewSQSSender(api, "https://sqs.us-east-1.amazonaws.com/123/inbox.fifo", nil).Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, "sqs-1", receipt.ProviderMessageID)
	assert.Equal(t, "fp-abc", aws.ToString(captured.MessageDeduplicationId))
	assert.Contains(t, aws.ToString(captured.MessageBody), `"jobId":"J1"`)
}

func TestSESSender_RequiresEmail(t *testing.T) {
	api := &MockSESService{SendEmailFunc: func(context.Context, *ses.SendEmailInput, ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
		t.Fatal("must not call SES without an address")
		return nil, nil
	}}

	_, err := NewSESSender(api, "noreply@fieldops.example", nil).Send(context.Background(), testMessage())
	require.Error(t, err)
}

func TestSESSender_SendsRenderedEmail(t *testing.T) {
	var captured *ses.SendEmailInput
	api := &MockSESService{SendEmailFunc: func(_ context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
		captured = in
		return &ses.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
	}}

	msg := testMessage()
	msg.EventType = models.EventRescheduled
	msg.Payload = map[string]interface{}{"email": "tech@fieldops.example", "scheduledFor": "Tue 09:00"}

	receipt, err := NewSESSender(api, "noreply@fieldops.example", nil).Send(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, "ses-1", receipt.ProviderMessageID)
	assert.Equal(t, []string{"tech@fieldops.example"}, captured.Destination.ToAddresses)
	assert.Equal(t, "Job rescheduled", aws.ToString(captured.Message.Subject.Data))
	assert.Equal(t, "Job J1 has a new schedule for Tue 09:00.", aws.ToString(captured.Message.Body.Text.Data))
}

func TestLogSender(t *testing.T) {
	receipt, err := NewLogSender(logger.NewTestLogger(t)).Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, "log-dlv-1", receipt.ProviderMessageID)
}

func TestRender(t *testing.T) {
	msg := testMessage()
	msg.EventType = models.EventStatusChanged
	msg.Payload = map[string]interface{}{"status": "en route"}
	title, body := Render(msg)
	assert.Equal(t, "Job status changed", title)
	assert.Equal(t, "Job J1 is now en route.", body)

	msg.Payload = map[string]interface{}{"title": "Heads up {{name}}", "body": "Crew {{crew}} at {{site}}", "crew": 7}
	title, body = Render(msg)
	assert.Equal(t, "Heads up ", title)
	assert.Equal(t, "Crew 7 at ", body)
}

func TestRender_ValuesAreNotExpandedAgain(t *testing.T) {
	msg := testMessage()
	msg.Payload = map[string]interface{}{
		"body":  "{{a}} / {{b}}",
		"a":     "literal {{b}}",
		"b":     "B",
		"title": "{{a}}",
	}

	for i := 0; i < 20; i++ {
		title, body := Render(msg)
		require.Equal(t, "literal {{b}}", title)
		require.Equal(t, "literal {{b}} / B", body)
	}
}

func TestRenderTemplate_UnclosedPlaceholderIsKept(t *testing.T) {
	assert.Equal(t, "Hi Ana, see {{tail", renderTemplate("Hi {{name}}, see {{tail", map[string]interface{}{"name": "Ana"}))
}

func TestPacer_WaitsInsteadOfDropping(t *testing.T) {
	p := NewPacer(1000, 1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Wait(ctx))
	}

	var nilPacer *Pacer
	assert.NoError(t, nilPacer.Wait(context.Background()))
	assert.Nil(t, NewPacer(0, 0))
}
