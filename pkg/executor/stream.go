package executor

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// ParseStreamJSON folds the newline-delimited events written by
// `--output-format stream-json` into a Record. Lines that are not JSON are
// ignored. The final "result" event supplies the response text, usage and
// cost; when it is missing the assistant text blocks are concatenated and
// the record is marked unsuccessful.
func ParseStreamJSON(data []byte) (Record, error) {
	var (
		rec       Record
		text      strings.Builder
		events    int
		hasResult bool
	)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || !gjson.ValidBytes(line) {
			continue
		}
		events++

		event := gjson.ParseBytes(line)
		switch event.Get("type").String() {
		case "assistant":
			event.Get("message.content").ForEach(func(_, block gjson.Result) bool {
				switch block.Get("type").String() {
				case "tool_use":
					rec.ToolCount++
				case "text":
					if text.Len() > 0 {
						text.WriteString("\n")
					}
					text.WriteString(block.Get("text").String())
				}
				return true
			})
		case "result":
			hasResult = true
			rec.Response = event.Get("result").String()
			rec.Success = !event.Get("is_error").Bool() && event.Get("subtype").String() != "error"
			rec.DurationMs = int(event.Get("duration_ms").Int())
			rec.CostUSD = event.Get("total_cost_usd").Float()

			usage := event.Get("usage")
			rec.InputTokens = int(usage.Get("input_tokens").Int() +
				usage.Get("cache_creation_input_tokens").Int() +
				usage.Get("cache_read_input_tokens").Int())
			rec.OutputTokens = int(usage.Get("output_tokens").Int())
		}
	}
	if err := scanner.Err(); err != nil {
		return Record{}, errors.Wrap(err, "failed to read stream-json output")
	}
	if events == 0 {
		return Record{}, errors.New("no stream-json events in output")
	}

	if !hasResult {
		rec.Response = text.String()
		rec.Success = false
	}
	return rec, nil
}
