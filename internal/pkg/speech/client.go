package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/cenkalti/backoff/v4"
)

// Job describes a submission to the external speech processing service.
// The service fetches audio from GetAudioURL and PUTs the result to PutResultURL,
// both single-use callback URLs registered by the orchestrator.
type Job struct {
	Token        string            `json:"token,omitempty"`
	GetAudioURL  string            `json:"getaudio"`
	PutResultURL string            `json:"putresult"`
	Service      string            `json:"service"`
	Subsystem    string            `json:"subsystem"`
	Params       map[string]string `json:"params,omitempty"`
}

// Client communicates with the speech processing service
type Client struct {
	httpclient *http.Client
	submitURL  string
	cancelURL  string
	timeout    time.Duration
	backoff    func() backoff.BackOff
}

// NewClient creates a speech service client
func NewClient(submitURL, cancelURL string) (*Client, error) {
	res := Client{}
	if submitURL == "" {
		return nil, fmt.Errorf("no submitURL")
	}
	if !strings.HasPrefix(submitURL, "http") {
		return nil, fmt.Errorf("no http in submitURL")
	}
	res.submitURL = submitURL
	res.cancelURL = cancelURL
	res.timeout = time.Second * 50
	res.httpclient = speechHTTPClient()
	res.backoff = newSimpleBackoff
	return &res, nil
}

type submitResponse struct {
	JobID   string `json:"jobid"`
	Message string `json:"message"`
}

// Submit sends the job request, returns the service supplied job id.
// A response without a job id is a submission failure carrying the service message.
func (sp *Client) Submit(ctx context.Context, job *Job) (string, error) {
	b, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("can't marshal job: %w", err)
	}
	return goapp.InvokeWithBackoff(ctx, func() (string, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, sp.timeout)
		defer cancelF()
		req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/%s", sp.submitURL, job.Service), bytes.NewReader(b))
		if err != nil {
			return "", false, err
		}
		req.Header.Set("Content-Type", "application/json")
		req = req.WithContext(ctx)
		goapp.Log.Info().Str("url", req.URL.String()).Str("service", job.Service).Msg("submit job")
		resp, err := sp.httpclient.Do(req)
		if err != nil {
			return "", goapp.IsRetryableErr(err), fmt.Errorf("can't call: %w", err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
			_ = resp.Body.Close()
		}()
		if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
			err = fmt.Errorf("can't invoke '%s': %w", req.URL.String(), err)
			return "", goapp.IsRetryableCode(resp.StatusCode), err
		}
		var respData submitResponse
		if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
			return "", true, fmt.Errorf("can't decode response: %w", err)
		}
		if respData.JobID == "" {
			msg := respData.Message
			if msg == "" {
				msg = "no job id in response"
			}
			return "", false, fmt.Errorf("submission failed: %s", msg)
		}
		return respData.JobID, false, nil
	}, sp.backoff())
}

// Cancel asks the service to drop a pending job. Best effort - used by unlock recovery.
func (sp *Client) Cancel(ctx context.Context, jobID string) error {
	if sp.cancelURL == "" {
		goapp.Log.Warn().Str("jobID", jobID).Msg("no cancel URL - skip")
		return nil
	}
	_, err := goapp.InvokeWithBackoff(ctx,
		func() (interface{}, bool, error) {
			ctx, cancelF := context.WithTimeout(ctx, sp.timeout)
			defer cancelF()
			req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/%s", sp.cancelURL, jobID), nil)
			if err != nil {
				return nil, false, err
			}
			req = req.WithContext(ctx)
			resp, err := sp.httpclient.Do(req)
			if err != nil {
				return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't call: %w", err)
			}
			defer func() {
				_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
				_ = resp.Body.Close()
			}()
			if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
				err = fmt.Errorf("can't invoke '%s': %w", req.URL.String(), err)
				return nil, goapp.IsRetryableCode(resp.StatusCode), err
			}
			return nil, false, nil
		}, sp.backoff())
	return err
}

func speechHTTPClient() *http.Client {
	return &http.Client{Transport: newTransport()}
}

func newTransport() http.RoundTripper {
	// default roundripper is not well suited for our case
	// it has just 2 idle connections per host, so try to tune a bit
	res := http.DefaultTransport.(*http.Transport).Clone()
	res.MaxConnsPerHost = 100
	res.MaxIdleConns = 50
	res.MaxIdleConnsPerHost = 50
	res.IdleConnTimeout = 90 * time.Second
	return res
}

func newSimpleBackoff() backoff.BackOff {
	res := backoff.NewExponentialBackOff()
	return backoff.WithMaxRetries(res, 3)
}
