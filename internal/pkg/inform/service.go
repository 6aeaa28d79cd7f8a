package inform

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/airenas/async-api/pkg/inform"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/scribe/internal/pkg/messages"
	"github.com/airenas/scribe/internal/pkg/persistence"
	"github.com/airenas/scribe/internal/pkg/utils"
	"github.com/jordan-wright/email"
	"github.com/spf13/viper"
	"github.com/vgarvardt/gue/v5"
)

// Sender send emails
type Sender interface {
	Send(email *email.Email) error
}

// EmailMaker prepares the email
type EmailMaker interface {
	Make(data *inform.Data) (*email.Email, error)
}

// EmailRetriever returns the email address of a user
type EmailRetriever interface {
	GetEmail(user string) (string, error)
}

// DB tracks email sending process
// It is used to quarantee not to send the emails twice
type DB interface {
	LockEmailTable(context.Context, string, string) error
	UnLockEmailTable(context.Context, string, string, *int) error
	LoadProject(ctx context.Context, id string) (*persistence.Project, error)
}

// ServiceData keeps data required for service work
type ServiceData struct {
	GueClient   *gue.Client
	WorkerCount int
	EmailSender Sender
	EmailMaker  EmailMaker
	Emails      EmailRetriever
	DB          DB
	Location    *time.Location
}

// StartWorkerService starts the event queue listener service to listen for inform events
// returns channel for tracking when all jobs are finished
func StartWorkerService(ctx context.Context, data *ServiceData) (chan struct{}, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	goapp.Log.Info().Msg("Starting listen for messages")

	wm := gue.WorkMap{
		messages.Inform: utils.CreateHandler(data, handleInform),
	}

	pool, err := gue.NewWorkerPool(
		data.GueClient, wm, data.WorkerCount,
		gue.WithPoolQueue(messages.Inform),
		gue.WithPoolLogger(utils.NewGueLoggerAdapter()),
		gue.WithPoolPollInterval(500*time.Millisecond),
		gue.WithPoolPollStrategy(gue.RunAtPollStrategy),
		gue.WithPoolID("scribe-inform"),
	)
	if err != nil {
		return nil, fmt.Errorf("could not build gue workers pool: %w", err)
	}
	res := make(chan struct{}, 1)
	go func() {
		goapp.Log.Info().Msg("Starting workers")
		if err := pool.Run(ctx); err != nil {
			goapp.Log.Error().Err(err).Msg("pool error")
		}
		goapp.Log.Info().Msg("Pool workers finished")
		res <- struct{}{}
	}()
	return res, nil
}

func handleInform(ctx context.Context, m *messages.TaskMessage, data *ServiceData) error {
	goapp.Log.Info().Str("ID", m.ID).Str("event", m.Event).Msg("handling")

	p, err := data.DB.LoadProject(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("can't load project: %w", err)
	}
	addr, err := data.Emails.GetEmail(p.Owner)
	if err != nil {
		return fmt.Errorf("can't retrieve email: %w", err)
	}
	if addr == "" {
		goapp.Log.Info().Str("user", p.Owner).Msg("No email, skip")
		return nil
	}

	mailData := inform.Data{}
	mailData.ID = m.ID
	mailData.MsgTime = toLocalTime(data, time.Now())
	mailData.MsgType = m.Event
	mailData.Email = addr

	email, err := data.EmailMaker.Make(&mailData)
	if err != nil {
		return fmt.Errorf("can't prepare email: %w", err)
	}

	err = data.DB.LockEmailTable(ctx, mailData.ID, lockKey(m))
	if err != nil {
		return fmt.Errorf("can't lock mail table: %w", err)
	}
	var unlockValue = 0
	defer data.DB.UnLockEmailTable(ctx, mailData.ID, lockKey(m), &unlockValue)

	err = data.EmailSender.Send(email)
	if err != nil {
		return fmt.Errorf("can't send email: %w", err)
	}
	unlockValue = 2
	return nil
}

// lockKey makes task events for different tasks distinct in the lock table
func lockKey(m *messages.TaskMessage) string {
	if m.Event == messages.EventTaskDone {
		return fmt.Sprintf("%s/%d", m.Event, m.TaskID)
	}
	return m.Event
}

func validate(data *ServiceData) error {
	if data.GueClient == nil {
		return fmt.Errorf("no gue client")
	}
	if data.WorkerCount < 1 {
		return fmt.Errorf("no worker count provided")
	}
	if data.EmailMaker == nil {
		return fmt.Errorf("no EmailMaker")
	}
	if data.EmailSender == nil {
		return fmt.Errorf("no EmailSender")
	}
	if data.Emails == nil {
		return fmt.Errorf("no EmailRetriever")
	}
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	return nil
}

func toLocalTime(data *ServiceData, t time.Time) time.Time {
	if data.Location != nil {
		return t.In(data.Location)
	}
	return t
}

// configEmailRetriever maps user names to emails from the configuration
type configEmailRetriever struct {
	emails map[string]string
}

// NewConfigEmailRetriever creates the retriever from 'inform.emails' config map
func NewConfigEmailRetriever(c *viper.Viper) (*configEmailRetriever, error) {
	res := &configEmailRetriever{emails: c.GetStringMapString("inform.emails")}
	if len(res.emails) == 0 {
		goapp.Log.Warn().Msg("No emails configured")
	}
	return res, nil
}

// GetEmail returns the user's email, empty if not configured
func (r *configEmailRetriever) GetEmail(user string) (string, error) {
	return r.emails[strings.ToLower(user)], nil
}
