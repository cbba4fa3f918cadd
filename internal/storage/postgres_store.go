package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/instant-dispatch/internal/models"
)

// PostgresStore keeps requests/trips in relational columns and the nested
// route/payload documents as jsonb, so reads rebuild the full model without
// a join fan-out.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) SaveRequest(ctx context.Context, r *models.InstantRequest) error {
	payload, err := json.Marshal(r.Payload)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO instant_requests(id, requester_id, transporter_id, payload, created_at, expires_at, status)
		 VALUES($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status`,
		r.ID, r.RequesterID, r.TransporterID, payload, r.CreatedAt, r.ExpiresAt, string(r.Status))
	return err
}

func (p *PostgresStore) GetRequest(ctx context.Context, id string) (*models.InstantRequest, bool, error) {
	var r models.InstantRequest
	var payload []byte
	var status string
	err := p.db.QueryRowContext(ctx,
		`SELECT id, requester_id, transporter_id, payload, created_at, expires_at, status
		 FROM instant_requests WHERE id=$1`, id).
		Scan(&r.ID, &r.RequesterID, &r.TransporterID, &payload, &r.CreatedAt, &r.ExpiresAt, &status)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if err := json.Unmarshal(payload, &r.Payload); err != nil {
		return nil, false, err
	}
	r.Status = models.RequestStatus(status)
	return &r, true, nil
}

// UpdateRequestStatus moves a request to a terminal status. The guard on the
// current row state enforces the single legal edge (pending to terminal) even
// against concurrent writers.
func (p *PostgresStore) UpdateRequestStatus(ctx context.Context, id string, status models.RequestStatus) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE instant_requests SET status=$1, updated_at=$2 WHERE id=$3 AND status=$4`,
		string(status), time.Now(), id, string(models.RequestPending))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrIllegalTransition
	}
	return nil
}

func (p *PostgresStore) ListRequestsByStatus(ctx context.Context, status models.RequestStatus) ([]models.InstantRequest, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, requester_id, transporter_id, payload, created_at, expires_at, status
		 FROM instant_requests WHERE status=$1 ORDER BY created_at`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.InstantRequest
	for rows.Next() {
		var r models.InstantRequest
		var payload []byte
		var st string
		if err := rows.Scan(&r.ID, &r.RequesterID, &r.TransporterID, &payload, &r.CreatedAt, &r.ExpiresAt, &st); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &r.Payload); err != nil {
			return nil, err
		}
		r.Status = models.RequestStatus(st)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) SaveTrip(ctx context.Context, t *models.ActiveTrip) error {
	route, err := json.Marshal(t.Route)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO trips(id, transporter_id, status, route)
		 VALUES($1,$2,$3,$4)
		 ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status`,
		t.ID, t.TransporterID, string(t.Status), route)
	return err
}

func (p *PostgresStore) GetTrip(ctx context.Context, id string) (*models.ActiveTrip, bool, error) {
	var t models.ActiveTrip
	var route []byte
	var status string
	var lat, lon sql.NullFloat64
	err := p.db.QueryRowContext(ctx,
		`SELECT id, transporter_id, status, route, current_lat, current_lon FROM trips WHERE id=$1`, id).
		Scan(&t.ID, &t.TransporterID, &status, &route, &lat, &lon)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if err := json.Unmarshal(route, &t.Route); err != nil {
		return nil, false, err
	}
	t.Status = models.TripStatus(status)
	if lat.Valid && lon.Valid {
		t.CurrentLocation = &models.Coordinate{Lat: lat.Float64, Lon: lon.Float64}
	}
	return &t, true, nil
}

func (p *PostgresStore) UpdateTripLocation(ctx context.Context, id string, loc models.Coordinate) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE trips SET current_lat=$1, current_lon=$2, updated_at=$3 WHERE id=$4`,
		loc.Lat, loc.Lon, time.Now(), id)
	return err
}

func (p *PostgresStore) AppendDeviation(ctx context.Context, d models.RouteDeviation) error {
	doc, err := json.Marshal(d)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO route_deviations(trip_id, recorded_at, doc) VALUES($1,$2,$3)`,
		d.TripID, d.Timestamp, doc)
	return err
}

func (p *PostgresStore) DeviationsSince(ctx context.Context, tripID string, since time.Time) ([]models.RouteDeviation, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT doc FROM route_deviations WHERE trip_id=$1 AND recorded_at > $2 ORDER BY recorded_at`,
		tripID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.RouteDeviation
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var d models.RouteDeviation
		if err := json.Unmarshal(doc, &d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *PostgresStore) SaveAlert(ctx context.Context, a models.TrafficAlert) error {
	doc, err := json.Marshal(a)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO traffic_alerts(id, expires_at, doc) VALUES($1,$2,$3)
		 ON CONFLICT (id) DO UPDATE SET expires_at = EXCLUDED.expires_at, doc = EXCLUDED.doc`,
		a.ID, a.ExpiresAt, doc)
	return err
}

func (p *PostgresStore) ActiveAlerts(ctx context.Context, now time.Time) ([]models.TrafficAlert, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT doc FROM traffic_alerts WHERE expires_at >= $1`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.TrafficAlert
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var a models.TrafficAlert
		if err := json.Unmarshal(doc, &a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Close() error { return p.db.Close() }
