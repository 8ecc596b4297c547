package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/spf13/cobra"

	"github.com/turtacn/covenantwatch/pkg/constants"
	"github.com/turtacn/covenantwatch/pkg/logger"
)

type assessOptions struct {
	server   string
	horizons string
	covenant string
	explain  bool
	actor    string
	timeout  time.Duration
	retries  int
}

func newAssessCmd(newLogger func() logger.Logger) *cobra.Command {
	var opts assessOptions
	cmd := &cobra.Command{
		Use:   "assess <loan-id>",
		Short: "Request a risk assessment from a running service",
		Example: `  cwctl assess loan-42 --server http://localhost:8080 --horizons 30,60
  cwctl assess loan-42 --covenant cov-dscr
  cwctl assess loan-42 --explain --horizons 90`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAssess(cmd.Context(), cmd.OutOrStdout(), args[0], opts, newLogger())
		},
	}
	cmd.Flags().StringVar(&opts.server, "server", "http://localhost:8080", "base URL of the covenantwatch service")
	cmd.Flags().StringVar(&opts.horizons, "horizons", "", "comma-separated horizons in days")
	cmd.Flags().StringVar(&opts.covenant, "covenant", "", "assess a single covenant")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "return the explanation for the first horizon")
	cmd.Flags().StringVar(&opts.actor, "actor", "", "value of the X-Actor header")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "per-attempt timeout")
	cmd.Flags().IntVar(&opts.retries, "retries", 2, "retries on connection errors and 5xx")
	return cmd
}

func assessURL(opts assessOptions, loanID string) (string, error) {
	base, err := url.Parse(strings.TrimRight(opts.server, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("invalid --server %q", opts.server)
	}

	first := ""
	if opts.horizons != "" {
		first = strings.TrimSpace(strings.Split(opts.horizons, ",")[0])
	}

	loanPath := "/api/v1/predictions/" + url.PathEscape(loanID)
	q := url.Values{}
	switch {
	case opts.covenant != "":
		base.Path += loanPath + "/covenant/" + url.PathEscape(opts.covenant)
		if first != "" {
			q.Set("horizon_days", first)
		}
	case opts.explain:
		base.Path += loanPath + "/explainability"
		if first != "" {
			q.Set("horizon_days", first)
		}
	default:
		base.Path += loanPath
		if opts.horizons != "" {
			q.Set("horizons", opts.horizons)
		}
	}
	base.RawQuery = q.Encode()
	return base.String(), nil
}

func runAssess(ctx context.Context, out io.Writer, loanID string, opts assessOptions, log logger.Logger) error {
	target, err := assessURL(opts, loanID)
	if err != nil {
		return err
	}

	client := retryablehttp.NewClient()
	client.RetryMax = opts.retries
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = opts.timeout
	client.Logger = nil

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if opts.actor != "" {
		req.Header.Set(constants.HeaderActor, opts.actor)
	}

	log.Debug(ctx, "requesting assessment", logger.String("url", target))
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d %s: %s", resp.StatusCode, apiErr.Error, apiErr.Message)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	var pretty interface{}
	if err := json.Unmarshal(body, &pretty); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return printJSON(out, pretty)
}
