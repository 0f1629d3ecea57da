package sizingRepository

import (
	"MaskFit/internal/api/sizing"
	"MaskFit/internal/entity"
	contextPkg "MaskFit/pkg/context"
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

type FitRecordDB struct {
	ID            sql.NullString  `db:"id"`
	SessionID     sql.NullString  `db:"session_id"`
	UserID        sql.NullString  `db:"user_id"`
	Profile       sql.NullString  `db:"profile"`
	Label         sql.NullString  `db:"label"`
	EstimateMM    sql.NullFloat64 `db:"estimate_mm"`
	PixelDistance sql.NullFloat64 `db:"pixel_distance"`
	SnapshotURL   sql.NullString  `db:"snapshot_url"`
	CreatedAt     time.Time       `db:"created_at"`
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *recordRepository) CreateRecord(c context.Context, record entity.FitRecord) error {
	requestID := contextPkg.GetRequestID(c)

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	argsKV := map[string]interface{}{
		"id":             record.ID,
		"session_id":     nullString(record.SessionID),
		"user_id":        nullString(record.UserID),
		"profile":        record.Profile,
		"label":          record.Label,
		"estimate_mm":    record.EstimateMM,
		"pixel_distance": record.PixelDistance,
		"snapshot_url":   nullString(record.SnapshotURL),
		"created_at":     createdAt.UTC(),
	}

	query, args, err := sqlx.Named(queryCreateRecord, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to build SQL query for CreateRecord")
		return err
	}
	query = r.q.Rebind(query)

	if _, err := r.q.ExecContext(c, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			r.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"record_id":  record.ID,
			}).Warn("Fit record id already exists")
		} else {
			r.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"error":      err.Error(),
			}).Error("Database error when creating fit record")
		}
		return err
	}

	return nil
}

func (r *recordRepository) GetRecordByID(c context.Context, id string) (entity.FitRecord, error) {
	requestID := contextPkg.GetRequestID(c)
	var record FitRecordDB

	query, args, err := sqlx.Named(queryGetRecordByID, map[string]interface{}{"id": id})
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("GetRecordByID named query preparation err")
		return entity.FitRecord{}, err
	}
	query = r.q.Rebind(query)

	if err := r.q.QueryRowxContext(c, query, args...).StructScan(&record); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"record_id":  id,
			}).Warn("GetRecordByID no rows found")
			return entity.FitRecord{}, sizing.ErrRecordNotFound
		}
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("GetRecordByID execution err")
		return entity.FitRecord{}, err
	}

	return r.makeFitRecord(record), nil
}

func (r *recordRepository) GetRecordsByUserID(c context.Context, userID string) ([]entity.FitRecord, error) {
	return r.selectRecords(c, queryGetRecordsByUserID, map[string]interface{}{"user_id": userID}, "GetRecordsByUserID")
}

func (r *recordRepository) GetRecordsBySessionID(c context.Context, sessionID string) ([]entity.FitRecord, error) {
	return r.selectRecords(c, queryGetRecordsBySessionID, map[string]interface{}{"session_id": sessionID}, "GetRecordsBySessionID")
}

func (r *recordRepository) selectRecords(c context.Context, namedQuery string, argsKV map[string]interface{}, operation string) ([]entity.FitRecord, error) {
	requestID := contextPkg.GetRequestID(c)
	var rows []FitRecordDB

	query, args, err := sqlx.Named(namedQuery, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error(operation + " named query preparation err")
		return nil, err
	}
	query = r.q.Rebind(query)

	if err := r.q.SelectContext(c, &rows, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error(operation + " execution err")
		return nil, err
	}

	records := make([]entity.FitRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, r.makeFitRecord(row))
	}

	return records, nil
}

func (r *recordRepository) makeFitRecord(row FitRecordDB) entity.FitRecord {
	return entity.FitRecord{
		ID:            row.ID.String,
		SessionID:     row.SessionID.String,
		UserID:        row.UserID.String,
		Profile:       row.Profile.String,
		Label:         row.Label.String,
		EstimateMM:    row.EstimateMM.Float64,
		PixelDistance: row.PixelDistance.Float64,
		SnapshotURL:   row.SnapshotURL.String,
		CreatedAt:     row.CreatedAt,
	}
}
