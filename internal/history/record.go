// Package history decodes server chat-history payloads and merges them into
// canonical sessions.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/parley/internal/domain"
)

// ErrNotObject is returned for a history record that is not a JSON object.
var ErrNotObject = errors.New("history record is not a JSON object")

// Record is one decoded history entry. It is either a CanonicalSession or a
// ServerSession.
type Record interface {
	record()
}

// CanonicalSession is the locally shaped record: id, optional title, messages.
type CanonicalSession struct {
	ID       string
	Title    string
	Messages []domain.Message
}

// ServerSession is the record shape returned by the history endpoint.
type ServerSession struct {
	SessionID string
	Title     string
	Chats     []domain.Message
	Count     int
}

func (CanonicalSession) record() {}
func (ServerSession) record()    {}

// rawRecord probes every field either shape may carry. Pointer and raw
// fields distinguish "absent" from "empty".
type rawRecord struct {
	ID        *string         `json:"id"`
	SessionID *string         `json:"session_id"`
	Title     string          `json:"title"`
	Messages  json.RawMessage `json:"messages"`
	Chats     json.RawMessage `json:"chats"`
	Count     int             `json:"count"`
}

type wireMessage struct {
	ID        string            `json:"id"`
	Role      domain.Role       `json:"role"`
	Text      string            `json:"message"`
	Timestamp json.RawMessage   `json:"timestamp"`
	Agent     string            `json:"agent"`
	Intent    string            `json:"intent"`
	ToolCalls []json.RawMessage `json:"tool_calls"`
}

type wireToolCall struct {
	Name   string          `json:"name"`
	Args   json.RawMessage `json:"args"`
	Result any             `json:"result"`
}

// ErrBadTimestamp marks a message timestamp that could not be parsed. The
// message is kept with a zero timestamp.
var ErrBadTimestamp = errors.New("unparseable message timestamp")

// timestamp layouts accepted from the server, most specific first.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Decode classifies a single raw record. A record carrying session_id or
// chats, and neither id nor messages, is a ServerSession; everything else is
// decoded as a CanonicalSession. Mistyped fields are dropped without error;
// use DecodeAll to see them.
func Decode(data json.RawMessage) (Record, error) {
	rec, _, err := decode(data)
	return rec, err
}

// DecodeAll decodes every record. A record that fails to decode is replaced
// by an empty CanonicalSession so the merge still materializes it. The
// returned errors cover failed records and the fields that were dropped or
// normalized in the records that were kept.
func DecodeAll(data []json.RawMessage) ([]Record, []error) {
	records := make([]Record, 0, len(data))
	var errs []error
	for i, d := range data {
		rec, warns, err := decode(d)
		for _, w := range warns {
			errs = append(errs, fmt.Errorf("record %d: %w", i, w))
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", i, err))
			rec = CanonicalSession{}
		}
		records = append(records, rec)
	}
	return records, errs
}

func decode(data json.RawMessage) (Record, []error, error) {
	var warns []error
	var raw rawRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &typeErr) && typeErr.Field == "":
			return nil, nil, ErrNotObject
		case errors.As(err, &typeErr):
			// A mistyped field leaves the rest of the record decoded.
			warns = append(warns, fmt.Errorf("field %s: %w", typeErr.Field, err))
		default:
			return nil, nil, fmt.Errorf("decoding history record: %w", err)
		}
	}

	serverShaped := (raw.SessionID != nil || present(raw.Chats)) &&
		raw.ID == nil && !present(raw.Messages)

	if serverShaped {
		chats, w := decodeMessages(raw.Chats)
		return ServerSession{
			SessionID: deref(raw.SessionID),
			Title:     raw.Title,
			Chats:     chats,
			Count:     raw.Count,
		}, append(warns, w...), nil
	}

	id := deref(raw.ID)
	if id == "" {
		id = deref(raw.SessionID)
	}
	field := raw.Messages
	if !present(field) {
		field = raw.Chats
	}
	msgs, w := decodeMessages(field)
	return CanonicalSession{ID: id, Title: raw.Title, Messages: msgs}, append(warns, w...), nil
}

// decodeMessages keeps every object item in order. A mistyped field costs
// only that field; items that are not objects are skipped.
func decodeMessages(data json.RawMessage) ([]domain.Message, []error) {
	if !present(data) {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, []error{fmt.Errorf("message list: %w", err)}
	}
	var warns []error
	msgs := make([]domain.Message, 0, len(items))
	for i, item := range items {
		var w wireMessage
		if err := json.Unmarshal(item, &w); err != nil {
			var typeErr *json.UnmarshalTypeError
			if !errors.As(err, &typeErr) || typeErr.Field == "" {
				warns = append(warns, fmt.Errorf("message %d skipped: %w", i, err))
				continue
			}
			warns = append(warns, fmt.Errorf("message %d field %s: %w", i, typeErr.Field, err))
		}
		ts, err := parseTimestamp(w.Timestamp)
		if err != nil {
			warns = append(warns, fmt.Errorf("message %d: %w", i, err))
		}
		calls, callWarns := decodeToolCalls(w.ToolCalls)
		for _, cw := range callWarns {
			warns = append(warns, fmt.Errorf("message %d: %w", i, cw))
		}
		msgs = append(msgs, domain.Message{
			ID:        w.ID,
			Role:      w.Role,
			Text:      w.Text,
			Timestamp: ts,
			Agent:     w.Agent,
			Intent:    w.Intent,
			ToolCalls: calls,
		})
	}
	return msgs, warns
}

func decodeToolCalls(items []json.RawMessage) ([]domain.ToolCallResult, []error) {
	if len(items) == 0 {
		return nil, nil
	}
	var warns []error
	calls := make([]domain.ToolCallResult, 0, len(items))
	for i, item := range items {
		var w wireToolCall
		if err := json.Unmarshal(item, &w); err != nil {
			var typeErr *json.UnmarshalTypeError
			if !errors.As(err, &typeErr) || typeErr.Field == "" {
				warns = append(warns, fmt.Errorf("tool call %d skipped: %w", i, err))
				continue
			}
			warns = append(warns, fmt.Errorf("tool call %d field %s: %w", i, typeErr.Field, err))
		}
		call := domain.ToolCallResult{Name: w.Name, Result: w.Result}
		if present(w.Args) {
			if err := json.Unmarshal(w.Args, &call.Args); err != nil {
				warns = append(warns, fmt.Errorf("tool call %d args: %w", i, err))
				call.Args = nil
			}
		}
		calls = append(calls, call)
	}
	return calls, warns
}

// parseTimestamp accepts an ISO-8601 string or a Unix time in seconds or
// milliseconds. Absent timestamps are zero without error.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if !present(raw) {
		return time.Time{}, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return time.Time{}, fmt.Errorf("%w: %s", ErrBadTimestamp, raw)
		}
		secs, err := n.Int64()
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %s", ErrBadTimestamp, raw)
		}
		if secs > 1e12 {
			return time.UnixMilli(secs).UTC(), nil
		}
		return time.Unix(secs, 0).UTC(), nil
	}
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, s)
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
