// Package internal holds operator-facing plumbing: the environment
// configuration and a debug HTTP server that renders the raw message
// store for inspection during development.
package internal

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

//go:embed inspect.html
var templatesFS embed.FS

// InspectRow is one rendered store entry.
type InspectRow struct {
	Key            string
	ConversationID string
	Timestamp      string
	MessageID      string
	Detail         string
}

type RowMapper func(key string, val []byte) InspectRow
type StatsProvider func() map[string]any

type PageData struct {
	Prefix string
	Items  []InspectRow
	Stats  map[string]any
}

// StartDebugServer serves /inspect on the given port, listing every
// store key under the requested prefix. Development tool only, it
// binds without authentication.
func StartDebugServer(db *badger.DB, port int, mapper RowMapper, statsProvider StatsProvider) {
	mux := http.NewServeMux()
	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))

	if mapper == nil {
		mapper = MessageMapper
	}

	mux.HandleFunc("/inspect", func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = "msg:"
		}

		data := PageData{
			Prefix: prefix,
			Stats:  make(map[string]any),
		}
		if statsProvider != nil {
			data.Stats = statsProvider()
		}

		_ = db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
				item := it.Item()
				_ = item.Value(func(val []byte) error {
					data.Items = append(data.Items, mapper(string(item.Key()), val))
					return nil
				})
			}
			return nil
		})

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, data)
	})

	go func() {
		_ = http.ListenAndServe(fmt.Sprintf("0.0.0.0:%d", port), mux)
	}()
}

// MessageMapper decodes the message key layout
// msg:<conversationId>:<createdAt>:<messageId>.
func MessageMapper(key string, val []byte) InspectRow {
	row := InspectRow{
		Key:            key,
		ConversationID: "--------",
		Timestamp:      "--:--:--",
		MessageID:      "--------",
		Detail:         "Size: " + strconv.Itoa(len(val)) + " bytes",
	}

	parts := strings.Split(key, ":")
	if len(parts) >= 4 {
		row.ConversationID = parts[1]
		if tsMilli, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
			row.Timestamp = time.UnixMilli(tsMilli).UTC().Format("15:04:05.000")
		}
		row.MessageID = parts[3]
		if len(row.MessageID) > 8 {
			row.MessageID = row.MessageID[:8]
		}
	}
	return row
}
