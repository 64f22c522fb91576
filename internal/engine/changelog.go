package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/openvital/vitalstore/internal/clause"
	"github.com/openvital/vitalstore/internal/identity"
	"github.com/openvital/vitalstore/internal/plan"
	"github.com/openvital/vitalstore/internal/store"
)

const (
	changeLogsTable      = "change_logs_table"
	changeLogTokensTable = "change_log_tokens_table"
)

// changeLogs accumulates the change-log entries of one unit of work,
// keyed by (recordType, appID). A single logical write produces one
// entry per affected (recordType, uuid), never per raw table write;
// duplicates within a key are dropped on add.
type changeLogs struct {
	operation int
	time      int64
	keys      []changeKey
	byKey     map[changeKey][]uuid.UUID
	seen      map[changeKey]map[uuid.UUID]struct{}
}

type changeKey struct {
	recordType int
	appID      int64
}

func newChangeLogs(operation int, now int64) *changeLogs {
	return &changeLogs{
		operation: operation,
		time:      now,
		byKey:     make(map[changeKey][]uuid.UUID),
		seen:      make(map[changeKey]map[uuid.UUID]struct{}),
	}
}

func (c *changeLogs) add(recordType int, appID int64, id uuid.UUID) {
	key := changeKey{recordType: recordType, appID: appID}
	ids, ok := c.seen[key]
	if !ok {
		ids = make(map[uuid.UUID]struct{})
		c.seen[key] = ids
		c.keys = append(c.keys, key)
	}
	if _, dup := ids[id]; dup {
		return
	}
	ids[id] = struct{}{}
	c.byKey[key] = append(c.byKey[key], id)
}

func (c *changeLogs) empty() bool {
	return len(c.keys) == 0
}

// flush writes the accumulated entries: one row per key, uuids packed
// as a concatenated blob, chunked so no row exceeds chunk ids.
func (c *changeLogs) flush(ctx context.Context, tx *store.Tx, chunk int) error {
	if chunk <= 0 {
		chunk = DefaultPageSize
	}
	for _, key := range c.keys {
		ids := c.byKey[key]
		for start := 0; start < len(ids); start += chunk {
			end := start + chunk
			if end > len(ids) {
				end = len(ids)
			}
			_, err := tx.Insert(ctx, plan.UpsertTable{
				Table:   changeLogsTable,
				Columns: []string{"record_type", "app_id", "uuids", "operation_type", "time"},
				Values: []any{
					key.recordType, key.appID,
					identity.ConcatUUIDs(ids[start:end]),
					c.operation, c.time,
				},
			})
			if err != nil {
				return fmt.Errorf("flush change logs: %w", err)
			}
		}
	}
	return nil
}

// Change is one decoded change-log entry.
type Change struct {
	RecordType  int
	PackageName string
	UUID        uuid.UUID
	Operation   int
	Time        int64
}

// ChangesPage is one page of the change stream. When no new entries
// exist NextToken equals the token the caller supplied, so polling
// with the final token is stable and detectable by token equality.
type ChangesPage struct {
	Changes   []Change
	NextToken string
	HasMore   bool
}

// GetChangeLogToken registers a change-log consumer and returns the
// opaque token marking "now": a request row holding the caller's
// type and package filters, paired with the current end of the log.
func (e *Engine) GetChangeLogToken(ctx context.Context, callerPackage string, recordTypes []int, packageFilter []string) (string, error) {
	if len(recordTypes) == 0 {
		return "", invalidRequest("change token", "at least one record type is required")
	}
	typeParts := make([]string, len(recordTypes))
	for i, id := range recordTypes {
		if _, err := e.registry.Descriptor(id); err != nil {
			return "", invalidRequest("change token", "unknown record type %d", id)
		}
		typeParts[i] = strconv.Itoa(id)
	}

	var token string
	err := e.store.RunAsTransaction(ctx, func(tx *store.Tx) error {
		reqID, err := tx.Insert(ctx, plan.UpsertTable{
			Table:   changeLogTokensTable,
			Columns: []string{"record_types", "package_names", "time"},
			Values: []any{
				strings.Join(typeParts, ","),
				strings.Join(packageFilter, ","),
				e.clock.NowMillis(),
			},
		})
		if err != nil {
			return fmt.Errorf("register change token: %w", err)
		}
		last, err := lastChangeLogRow(ctx, tx)
		if err != nil {
			return err
		}
		token = formatChangeToken(reqID, last)
		return nil
	})
	if err != nil {
		return "", err
	}
	e.log.Debug("issued change token", "caller", callerPackage, "token", token)
	return token, nil
}

// GetChanges returns the change-log entries recorded after token,
// filtered by the token's registered record types and packages.
func (e *Engine) GetChanges(ctx context.Context, token string, pageSize int) (*ChangesPage, error) {
	reqID, lastRow, err := parseChangeToken(token)
	if err != nil {
		return nil, err
	}
	pageSize = clampPageSize(pageSize, e.pageSize)

	page := &ChangesPage{NextToken: token}
	err = e.store.RunAsTransaction(ctx, func(tx *store.Tx) error {
		types, packages, err := loadChangeTokenRequest(ctx, tx, reqID)
		if err != nil {
			return err
		}

		where := clause.NewWhere(clause.And).GreaterThan("row_id", lastRow)
		if len(types) > 0 {
			where.InLongs("record_type", types)
		}
		if len(packages) > 0 {
			ids, err := appIDsForPackages(ctx, tx, packages)
			if err != nil {
				return err
			}
			// A filter naming only unknown packages matches nothing.
			if len(ids) == 0 {
				return nil
			}
			where.InLongs("app_id", ids)
		}

		var order clause.OrderBy
		rows, err := tx.Read(ctx, plan.ReadTable{
			Table: changeLogsTable,
			Where: where,
			Order: order.Asc("row_id"),
			Limit: pageSize + 1,
		})
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		if len(rows) > pageSize {
			rows = rows[:pageSize]
			page.HasMore = true
		}

		names := make(map[int64]string)
		// One entry per (recordType, uuid) within a response; a later
		// log row for the same identity overrides the earlier entry,
		// so an insert followed by a delete surfaces only the delete.
		type entryKey struct {
			recordType int
			id         uuid.UUID
		}
		index := make(map[entryKey]int)
		for _, row := range rows {
			appID := asInt64(row["app_id"])
			name, ok := names[appID]
			if !ok {
				if name, err = packageNameForAppID(ctx, tx, appID); err != nil {
					return err
				}
				names[appID] = name
			}
			blob, _ := row["uuids"].([]byte)
			ids, err := identity.SplitUUIDs(blob)
			if err != nil {
				return fmt.Errorf("change log row %v: %w", row["row_id"], err)
			}
			recordType := int(asInt64(row["record_type"]))
			for _, id := range ids {
				change := Change{
					RecordType:  recordType,
					PackageName: name,
					UUID:        id,
					Operation:   int(asInt64(row["operation_type"])),
					Time:        asInt64(row["time"]),
				}
				key := entryKey{recordType: recordType, id: id}
				if at, dup := index[key]; dup {
					page.Changes[at] = change
					continue
				}
				index[key] = len(page.Changes)
				page.Changes = append(page.Changes, change)
			}
		}
		page.NextToken = formatChangeToken(reqID, asInt64(rows[len(rows)-1]["row_id"]))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

func lastChangeLogRow(ctx context.Context, tx *store.Tx) (int64, error) {
	rows, err := tx.Query(ctx, "SELECT COALESCE(MAX(row_id), 0) AS last FROM "+changeLogsTable)
	if err != nil {
		return 0, fmt.Errorf("last change log row: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return asInt64(rows[0]["last"]), nil
}

func loadChangeTokenRequest(ctx context.Context, tx *store.Tx, reqID int64) ([]int64, []string, error) {
	rows, err := tx.Read(ctx, plan.ReadTable{
		Table:   changeLogTokensTable,
		Columns: []string{"record_types", "package_names"},
		Where:   clause.NewWhere(clause.And).EqualsInt("row_id", reqID),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("load change token request: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil, invalidRequest("get changes", "unknown change token request %d", reqID)
	}

	var types []int64
	if raw, ok := rows[0]["record_types"].(string); ok && raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("malformed change token request %d: %w", reqID, err)
			}
			types = append(types, id)
		}
	}
	var packages []string
	if raw, ok := rows[0]["package_names"].(string); ok && raw != "" {
		packages = strings.Split(raw, ",")
	}
	return types, packages, nil
}

func formatChangeToken(reqID, lastRow int64) string {
	return strconv.FormatInt(reqID, 10) + "," + strconv.FormatInt(lastRow, 10)
}

func parseChangeToken(token string) (reqID, lastRow int64, err error) {
	parts := strings.SplitN(token, ",", 2)
	if len(parts) != 2 {
		return 0, 0, invalidRequest("get changes", "malformed change token %q", token)
	}
	reqID, err = strconv.ParseInt(parts[0], 10, 64)
	if err == nil {
		lastRow, err = strconv.ParseInt(parts[1], 10, 64)
	}
	if err != nil {
		return 0, 0, invalidRequest("get changes", "malformed change token %q", token)
	}
	return reqID, lastRow, nil
}
