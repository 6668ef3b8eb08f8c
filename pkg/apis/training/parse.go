package training

import (
	"regexp"
	"strings"
	"time"

	"github.com/ghodss/yaml"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/tensorworks/mljobs/pkg/errs"
)

// Timestamp layouts the provider emits: RFC3339 in describe documents,
// second-resolution GMT in list tables.
const (
	describeTimeLayout = time.RFC3339
	listTimeLayout     = "2006-01-02T15:04:05"
)

// ParseDescribe decodes the YAML document returned by `jobs describe` into a
// JobStatus. The raw document is retained on the status for callers that need
// fields outside the typed view.
func ParseDescribe(doc string) (*JobStatus, error) {
	raw := map[string]interface{}{}
	if err := yaml.Unmarshal([]byte(doc), &raw); err != nil {
		return nil, errors.Wrapf(errs.ErrParse, "describe output is not valid YAML: %v", err)
	}
	if len(raw) == 0 {
		return nil, errors.Wrapf(errs.ErrParse, "describe output is empty")
	}

	status := &JobStatus{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           status,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build describe decoder")
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, errors.Wrapf(errs.ErrParse, "describe document has unexpected shape: %v", err)
	}
	status.Raw = raw
	return status, nil
}

// ListedJob is one row of the `jobs list` table.
type ListedJob struct {
	JobID   string
	State   State
	Created time.Time
}

// ParseListing parses the whitespace-tabular `jobs list` report. The CREATED
// column is converted from the provider's GMT wall clock to an absolute time.
func ParseListing(out string) ([]ListedJob, error) {
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return nil, nil
	}

	header := strings.Fields(lines[0])
	col := map[string]int{}
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"JOB_ID", "STATUS", "CREATED"} {
		if _, ok := col[required]; !ok {
			return nil, errors.Wrapf(errs.ErrParse, "list output missing %s column", required)
		}
	}

	var jobs []ListedJob
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < len(header) {
			return nil, errors.Wrapf(errs.ErrParse, "malformed list row [%s]", line)
		}
		created, err := time.ParseInLocation(listTimeLayout, fields[col["CREATED"]], time.UTC)
		if err != nil {
			return nil, errors.Wrapf(errs.ErrParse, "malformed CREATED value in row [%s]: %v", line, err)
		}
		jobs = append(jobs, ListedJob{
			JobID:   fields[col["JOB_ID"]],
			State:   fields[col["STATUS"]],
			Created: created,
		})
	}
	return jobs, nil
}

// ParseTimestamp parses a describe-document timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(describeTimeLayout, s)
}

var urlPattern = regexp.MustCompile(`https://[^\s'"]+`)

// ConsoleURLs are the follow-up links the provider prints on submission.
type ConsoleURLs struct {
	Console string
	Logs    string
}

// ScrapeURLs extracts console and log URLs from captured diagnostic text.
func ScrapeURLs(text string) ConsoleURLs {
	urls := ConsoleURLs{}
	for _, u := range urlPattern.FindAllString(text, -1) {
		switch {
		case strings.Contains(u, "/logs") && urls.Logs == "":
			urls.Logs = u
		case urls.Console == "":
			urls.Console = u
		}
	}
	return urls
}
