package database

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/pixelforegllc/quantummftools-dash/core"
	"github.com/pixelforegllc/quantummftools-dash/core/sms"
)

// bindType is the placeholder style of the engine goose runs against.
var bindType = sqlx.QUESTION

func init() {
	goose.AddNamedMigrationContext("00005_add_search_columns.go", upSearchColumns, downSearchColumns)
}

// upSearchColumns adds the plain-text columns searched instead of the JSON documents,
// and fills them for the existing rows.
func upSearchColumns(ctx context.Context, tx *sql.Tx) error {
	for _, q := range []string{
		"ALTER TABLE sms_templates ADD COLUMN tag_list TEXT NOT NULL DEFAULT ''",
		"ALTER TABLE sms_schedules ADD COLUMN recipient_phones TEXT NOT NULL DEFAULT ''",
	} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return errors.Wrap(err, "adding search column")
		}
	}

	if err := backfill(ctx, tx, "sms_templates", "tags", "tag_list", func(doc []byte) (string, error) {
		var tags []string
		if err := json.Unmarshal(doc, &tags); err != nil {
			return "", err
		}
		return sms.JoinSearchValues(tags), nil
	}); err != nil {
		return err
	}
	return backfill(ctx, tx, "sms_schedules", "recipients", "recipient_phones", func(doc []byte) (string, error) {
		var recipients []sms.Recipient
		if err := json.Unmarshal(doc, &recipients); err != nil {
			return "", err
		}
		return sms.Schedule{Recipients: recipients}.PhoneSearchValue(), nil
	})
}

func downSearchColumns(ctx context.Context, tx *sql.Tx) error {
	for _, q := range []string{
		"ALTER TABLE sms_templates DROP COLUMN tag_list",
		"ALTER TABLE sms_schedules DROP COLUMN recipient_phones",
	} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return errors.Wrap(err, "dropping search column")
		}
	}
	return nil
}

// backfill sets column dst of every row of table from the JSON document in column src.
func backfill(ctx context.Context, tx *sql.Tx, table, src, dst string, convert func([]byte) (string, error)) error {
	rows, err := tx.QueryContext(ctx, "SELECT id, "+src+" FROM "+table)
	if err != nil {
		return errors.Wrapf(err, "reading %s", table)
	}
	values := make(map[string]string)
	for rows.Next() {
		var id string
		var doc []byte
		if err = rows.Scan(&id, &doc); err != nil {
			_ = rows.Close()
			return errors.Wrapf(err, "reading %s", table)
		}
		if values[id], err = convert(doc); err != nil {
			_ = rows.Close()
			return errors.Wrapf(err, "decoding %s.%s of %s", table, src, id)
		}
	}
	if err = rows.Close(); err != nil {
		return err
	}
	if err = rows.Err(); err != nil {
		return err
	}

	q := sqlx.Rebind(bindType, "UPDATE "+table+" SET "+dst+" = ? WHERE id = ?")
	for id, val := range values {
		if _, err = tx.ExecContext(ctx, q, val, id); err != nil {
			return errors.Wrapf(err, "filling %s.%s", table, dst)
		}
	}
	return nil
}

func engineBindType(engine string) int {
	if engine == core.EnginePostgres {
		return sqlx.DOLLAR
	}
	return sqlx.QUESTION
}
