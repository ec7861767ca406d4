package kafka

import (
	"encoding/json"
	"fmt"
	"strconv"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kbukum/rowflow/row"
)

// Metadata fields set on rows read with SourceConfig.Metadata.
const (
	FieldKey       = "_key"
	FieldTopic     = "_topic"
	FieldPartition = "_partition"
	FieldOffset    = "_offset"
)

// FieldValue holds the raw value of a message that is not a JSON object.
const FieldValue = "value"

const (
	headerContentType = "content-type"
	headerRowID       = "row-id"
	contentTypeJSON   = "application/json"
)

// Decode turns a message into a row. A JSON object value becomes the row
// values; any other payload is kept as a string under FieldValue.
func Decode(msg kafkago.Message, metadata bool) *row.Row {
	values := map[string]any{}
	if err := json.Unmarshal(msg.Value, &values); err != nil || values == nil {
		values = map[string]any{FieldValue: string(msg.Value)}
	}
	if metadata {
		values[FieldKey] = string(msg.Key)
		values[FieldTopic] = msg.Topic
		values[FieldPartition] = msg.Partition
		values[FieldOffset] = msg.Offset
	}
	r := row.New(values)
	for _, h := range msg.Headers {
		if h.Key == headerRowID {
			r.ID = string(h.Value)
		}
	}
	return r
}

// Encode turns a row into a message for topic. fields restricts the
// encoded values; keyField names the value used as the message key.
func Encode(r *row.Row, topic, keyField string, fields []string) (kafkago.Message, error) {
	values := r.Values()
	if len(fields) > 0 {
		values = make(map[string]any, len(fields))
		for _, f := range fields {
			values[f] = r.Get(f)
		}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("encode row %s: %w", r.ID, err)
	}

	msg := kafkago.Message{
		Topic:   topic,
		Value:   data,
		Headers: []kafkago.Header{{Key: headerContentType, Value: []byte(contentTypeJSON)}},
	}
	if keyField != "" {
		msg.Key = []byte(keyString(r.Get(keyField)))
	}
	if r.ID != "" {
		msg.Headers = append(msg.Headers, kafkago.Header{Key: headerRowID, Value: []byte(r.ID)})
	}
	return msg, nil
}

func keyString(v any) string {
	switch k := v.(type) {
	case nil:
		return ""
	case string:
		return k
	case int:
		return strconv.Itoa(k)
	case int64:
		return strconv.FormatInt(k, 10)
	default:
		return fmt.Sprint(k)
	}
}
