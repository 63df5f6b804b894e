package pggateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/supabase-community/pg-gateway/internal/wire"
)

func encodeRowDescription(fields []FieldDescription) []byte {
	w := wire.NewBufferWriter().AddInt16(int16(len(fields)))
	for _, f := range fields {
		w.AddCString(f.Name).
			AddUint32(f.TableOID).
			AddInt16(f.ColumnID).
			AddUint32(f.DataTypeOID).
			AddInt16(f.DataTypeSize).
			AddInt32(f.TypeModifier).
			AddInt16(f.Format)
	}
	return w.Flush(wire.RowDescription)
}

// encodeDataRow emits one value per field, in field order, NULL (-1 length)
// when a field has no matching row entry. Per §4.4.4 a row key with no
// matching field entry is a fatal mismatch between the hook's declared
// schema and the data it produced.
func encodeDataRow(fields []FieldDescription, row Row) ([]byte, error) {
	for key := range row {
		found := false
		for _, f := range fields {
			if f.Name == key {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("pggateway: row key %q has no matching field in RowDescription", key)
		}
	}

	w := wire.NewBufferWriter().AddInt16(int16(len(fields)))
	for _, f := range fields {
		val, ok := row[f.Name]
		if !ok {
			w.AddInt32(-1)
			continue
		}
		w.AddInt32(int32(len(val))).Add(val)
	}
	return w.Flush(wire.DataRow), nil
}

// commandCompleteTag builds the CommandComplete tag string (§4.4.4):
// "{COMMAND_UPPER} {count}", except insert which is "INSERT 0 {count}".
func commandCompleteTag(command string, count int64) string {
	upper := strings.ToUpper(command)
	if upper == "INSERT" {
		return fmt.Sprintf("INSERT 0 %d", count)
	}
	return fmt.Sprintf("%s %d", upper, count)
}

func encodeCommandComplete(tag string) []byte {
	return wire.NewBufferWriter().AddCString(tag).Flush(wire.CommandComplete)
}

func encodeReadyForQuery(status byte) []byte {
	return wire.NewBufferWriter().AddByte(status).Flush(wire.ReadyForQuery)
}

func encodeEmptyQueryResponse() []byte {
	return wire.NewBufferWriter().Flush(wire.EmptyQuery)
}

func encodeParameterStatus(name, value string) []byte {
	return wire.NewBufferWriter().AddCString(name).AddCString(value).Flush(wire.ParameterStatus)
}

// handleQuery implements §4.4.4: parse the simple Query message, invoke
// OnQuery, and encode its lazy CommandResult sequence. A nil OnQuery means
// queries are never answered at all — not even with an error.
func (c *Conn) handleQuery(ctx context.Context, payload []byte) ([]outputItem, error) {
	r := wire.NewBufferReader(payload)
	queryText, err := r.CString()
	if err != nil {
		return fatalItems(wire.SQLStateProtocolViolation, "malformed Query message")
	}

	if c.opts.hooks.OnQuery == nil {
		return nil, nil
	}

	result, err := c.opts.hooks.OnQuery(ctx, queryText, c.state.snapshot())
	if err != nil {
		if be, ok := err.(*BackendError); ok {
			return fatalItemsFromBackendError(be)
		}
		return nil, err
	}

	if len(result) == 0 {
		return []outputItem{
			{bytes: encodeEmptyQueryResponse()},
			{bytes: encodeReadyForQuery(wire.TxStatusIdle)},
		}, nil
	}

	var items []outputItem
	for _, cmd := range result {
		if cmd.Fields != nil {
			items = append(items, outputItem{bytes: encodeRowDescription(cmd.Fields)})
			for _, row := range cmd.Rows {
				encoded, err := encodeDataRow(cmd.Fields, row)
				if err != nil {
					return nil, err
				}
				items = append(items, outputItem{bytes: encoded})
			}
		}

		count := int64(len(cmd.Rows))
		if cmd.AffectedRows != nil {
			count = *cmd.AffectedRows
		}
		items = append(items, outputItem{bytes: encodeCommandComplete(commandCompleteTag(cmd.Command, count))})
	}
	items = append(items, outputItem{bytes: encodeReadyForQuery(wire.TxStatusIdle)})
	return items, nil
}
