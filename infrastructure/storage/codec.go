package storage

import (
	"fmt"
	"messenger/domain/document"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const docPrefix = "doc:"

// record is what is persisted for one document.
// Times are epoch milliseconds assigned by the store clock.
type record struct {
	fields     document.Fields
	createTime float64
	updateTime float64
}

func (r record) toDocument(collection, id string) document.Document {
	return document.Document{
		Collection: collection,
		ID:         id,
		Fields:     r.fields,
		CreateTime: document.FromMillis(r.createTime),
		UpdateTime: document.FromMillis(r.updateTime),
		Exists:     true,
	}
}

// encodeRecord serializes a record as a protobuf Struct.
func encodeRecord(r record) ([]byte, error) {
	st, err := structpb.NewStruct(map[string]any{
		"fields":     map[string]any(r.fields),
		"createTime": r.createTime,
		"updateTime": r.updateTime,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	return proto.Marshal(st)
}

func decodeRecord(b []byte) (record, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(b, &st); err != nil {
		return record{}, fmt.Errorf("decoding document: %w", err)
	}
	m := st.AsMap()
	fields, _ := m["fields"].(map[string]any)
	if fields == nil {
		fields = map[string]any{}
	}
	createTime, _ := m["createTime"].(float64)
	updateTime, _ := m["updateTime"].(float64)
	return record{fields: fields, createTime: createTime, updateTime: updateTime}, nil
}

// docKey is "doc:{collection}/{id}". Sub-collections nest under their parent document.
func docKey(collection, id string) string {
	return docPrefix + collection + "/" + id
}

func collectionPrefix(collection string) string {
	return docPrefix + collection + "/"
}

// splitKey is the inverse of docKey.
func splitKey(key string) (collection, id string, ok bool) {
	path, found := strings.CutPrefix(key, docPrefix)
	if !found {
		return "", "", false
	}
	i := strings.LastIndex(path, "/")
	if i <= 0 || i == len(path)-1 {
		return "", "", false
	}
	return path[:i], path[i+1:], true
}

func validateRef(collection, id string) error {
	if collection == "" || strings.HasPrefix(collection, "/") || strings.HasSuffix(collection, "/") {
		return fmt.Errorf("invalid collection %q", collection)
	}
	if id == "" || strings.Contains(id, "/") {
		return fmt.Errorf("invalid document id %q", id)
	}
	return nil
}
