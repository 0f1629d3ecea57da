package sizingRepository

const (
	queryCreateRecord = `
		INSERT INTO fit_records (
			id,
			session_id,
			user_id,
			profile,
			label,
			estimate_mm,
			pixel_distance,
			snapshot_url,
			created_at
		) VALUES (
			:id,
			:session_id,
			:user_id,
			:profile,
			:label,
			:estimate_mm,
			:pixel_distance,
			:snapshot_url,
			:created_at
		)
	`

	queryGetRecordByID = `
		SELECT
			id,
			session_id,
			user_id,
			profile,
			label,
			estimate_mm,
			pixel_distance,
			snapshot_url,
			created_at
		FROM fit_records
		WHERE id = :id
	`

	queryGetRecordsByUserID = `
		SELECT
			id,
			session_id,
			user_id,
			profile,
			label,
			estimate_mm,
			pixel_distance,
			snapshot_url,
			created_at
		FROM fit_records
		WHERE user_id = :user_id
		ORDER BY created_at DESC
	`

	queryGetRecordsBySessionID = `
		SELECT
			id,
			session_id,
			user_id,
			profile,
			label,
			estimate_mm,
			pixel_distance,
			snapshot_url,
			created_at
		FROM fit_records
		WHERE session_id = :session_id
		ORDER BY created_at DESC
	`
)
