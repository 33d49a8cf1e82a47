package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kazimov/jobtrail/domain"
	"github.com/kazimov/jobtrail/ports"
	_ "modernc.org/sqlite"
)

// sqlExecer is the subset of *sql.DB / *sql.Tx the store's query methods
// need, narrowed the same way store/postgres.go's dbPool is: it lets
// WithTx swap in a *sql.Tx without touching any query method.
type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// EmbeddedStore is the single-file engine (§6 Persisted state layout,
// "also runnable as an embedded single-file store for offline operation
// or as a spool ahead of the server engine"): the same Store contract as
// PostgresStore, backed by modernc.org/sqlite through database/sql so no
// cgo toolchain is required on the laptop this runs offline on.
type EmbeddedStore struct {
	raw            *sql.DB   // lifecycle handle: Close, Health, BeginTx
	db             sqlExecer // query handle: raw outside a transaction, a *sql.Tx inside WithTx
	embeddingModel string
}

// OpenEmbedded opens (creating if absent) a SQLite database at path and
// applies embeddedSchema, the SQLite-syntax mirror of
// store/migrations/0001_init.up.sql (TEXT/BYTEA kept as TEXT/BLOB-compatible
// affinities, JSONB columns degrade to SQLite's dynamic typing).
// embeddingModel is the currently configured model version; reads of
// embeddings stamped with a different version fail via DecodeEmbedding.
func OpenEmbedded(ctx context.Context, path, embeddingModel string) (*EmbeddedStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // sqlite serialises writers; avoid pool contention on a single file
	if err := applyEmbeddedSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &EmbeddedStore{raw: db, db: db, embeddingModel: embeddingModel}, nil
}

func (s *EmbeddedStore) Close() error { return s.raw.Close() }

func (s *EmbeddedStore) Health(ctx context.Context) error { return s.raw.PingContext(ctx) }

// WithTx runs fn against a single SQLite transaction: every store call fn
// makes through tx either all commit or all roll back together, the
// transactional compound-update primitive §4.1 (store capabilities)
// requires for things like "upsert KnownSender + set outcome on
// application" in matcher.Matcher.MatchMessage.
func (s *EmbeddedStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx ports.Store) error) error {
	tx, err := s.raw.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	txStore := &EmbeddedStore{raw: s.raw, db: tx, embeddingModel: s.embeddingModel}
	if err := fn(ctx, txStore); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func isSQLiteUnique(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// --- Listings ---------------------------------------------------------

func (s *EmbeddedStore) InsertListing(ctx context.Context, l *domain.Listing) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	l.CreatedAt, l.UpdatedAt = now, now
	tags, err := EncodeStrings(l.TechnologyTags)
	if err != nil {
		return err
	}
	scores, err := EncodeScores(l.ArchetypeScores)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO listings (id, external_id, title, hiring_entity, full_text, first_seen_at,
			search_keyword, role_type, seniority, technology_tags, archetype_scores, primary_archetype,
			embedding, embedding_model, intelligence_only, classified, classify_attempts, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		l.ID, l.ExternalID, l.Title, l.HiringEntity, l.FullText, l.FirstSeenAt.Format(time.RFC3339Nano),
		l.SearchKeyword, string(l.RoleType), string(l.Seniority), tags, scores, string(l.PrimaryArchetype),
		EncodeVector(l.Embedding.Vector), l.Embedding.ModelVersion, l.IntelligenceOnly, l.Classified,
		l.ClassifyAttempts, l.CreatedAt.Format(time.RFC3339Nano), l.UpdatedAt.Format(time.RFC3339Nano))
	if isSQLiteUnique(err) {
		return domain.ErrListingDuplicate
	}
	return err
}

func scanEmbeddedListing(row interface{ Scan(...any) error }, expectedModel string) (*domain.Listing, error) {
	l := &domain.Listing{}
	var roleType, seniority, primaryArchetype, embeddingModel string
	var tags, scores, embeddingBytes []byte
	var firstSeen, createdAt, updatedAt string
	err := row.Scan(&l.ID, &l.ExternalID, &l.Title, &l.HiringEntity, &l.FullText, &firstSeen,
		&l.SearchKeyword, &roleType, &seniority, &tags, &scores, &primaryArchetype,
		&embeddingBytes, &embeddingModel, &l.IntelligenceOnly, &l.Classified, &l.ClassifyAttempts,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	l.RoleType, l.Seniority, l.PrimaryArchetype = domain.RoleType(roleType), domain.Seniority(seniority), domain.Archetype(primaryArchetype)
	l.FirstSeenAt, _ = time.Parse(time.RFC3339Nano, firstSeen)
	l.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	l.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if l.TechnologyTags, err = DecodeStrings(tags); err != nil {
		return nil, err
	}
	if l.ArchetypeScores, err = DecodeScores(scores); err != nil {
		return nil, err
	}
	if len(embeddingBytes) > 0 {
		if l.Embedding, err = DecodeEmbedding(embeddingBytes, embeddingModel, expectedModel); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (s *EmbeddedStore) GetListingByID(ctx context.Context, id string) (*domain.Listing, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = ?`, id)
	l, err := scanEmbeddedListing(row, s.embeddingModel)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrListingNotFound
	}
	return l, err
}

func (s *EmbeddedStore) GetListingByExternalID(ctx context.Context, externalID string) (*domain.Listing, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE external_id = ?`, externalID)
	l, err := scanEmbeddedListing(row, s.embeddingModel)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrListingNotFound
	}
	return l, err
}

func (s *EmbeddedStore) UpdateListingClassification(ctx context.Context, l *domain.Listing) error {
	scores, err := EncodeScores(l.ArchetypeScores)
	if err != nil {
		return err
	}
	l.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE listings SET role_type=?, seniority=?, archetype_scores=?, primary_archetype=?,
			embedding=?, embedding_model=?, classified=?, classify_attempts=?, updated_at=?
		WHERE id = ?`,
		string(l.RoleType), string(l.Seniority), scores, string(l.PrimaryArchetype),
		EncodeVector(l.Embedding.Vector), l.Embedding.ModelVersion, l.Classified, l.ClassifyAttempts,
		l.UpdatedAt.Format(time.RFC3339Nano), l.ID)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, domain.ErrListingNotFound)
}

func (s *EmbeddedStore) SetIntelligenceOnly(ctx context.Context, listingID string, value bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE listings SET intelligence_only = ?, updated_at = ? WHERE id = ?`, value, time.Now().UTC().Format(time.RFC3339Nano), listingID)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, domain.ErrListingNotFound)
}

func (s *EmbeddedStore) ListListings(ctx context.Context, f ports.ListingFilter) ([]*domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE 1=1`
	var args []any
	if f.Archetype != "" {
		query += ` AND primary_archetype = ?`
		args = append(args, string(f.Archetype))
	}
	if !f.SeenAfter.IsZero() {
		query += ` AND first_seen_at >= ?`
		args = append(args, f.SeenAfter.Format(time.RFC3339Nano))
	}
	if !f.SeenBefore.IsZero() {
		query += ` AND first_seen_at < ?`
		args = append(args, f.SeenBefore.Format(time.RFC3339Nano))
	}
	if f.IntelligenceOnly != nil {
		query += ` AND intelligence_only = ?`
		args = append(args, *f.IntelligenceOnly)
	}
	if f.Unclassified {
		query += ` AND classified = 0`
	}
	query += ` ORDER BY first_seen_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Listing
	for rows.Next() {
		l, err := scanEmbeddedListing(rows, s.embeddingModel)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// --- Applications -------------------------------------------------------

func (s *EmbeddedStore) InsertApplication(ctx context.Context, a *domain.Application) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO applications (id, listing_id, variant_archetype, version_identifier, profile_state,
			batch_id, submitted_at, outcome, outcome_at, outcome_message_id, selection_rationale,
			submission_failed, submission_error, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.ListingID, string(a.VariantArchetype), a.VersionIdentifier, string(a.ProfileState),
		a.BatchID, a.SubmittedAt.Format(time.RFC3339Nano), string(a.Outcome), formatNullableTime(a.OutcomeAt),
		a.OutcomeMessageID, a.SelectionRationale, a.SubmissionFailed, a.SubmissionError,
		a.CreatedAt.Format(time.RFC3339Nano), a.UpdatedAt.Format(time.RFC3339Nano))
	return err
}

func scanEmbeddedApplication(row interface{ Scan(...any) error }) (*domain.Application, error) {
	a := &domain.Application{}
	var variantArchetype, profileState, outcome string
	var submittedAt, createdAt, updatedAt string
	var outcomeAt sql.NullString
	err := row.Scan(&a.ID, &a.ListingID, &variantArchetype, &a.VersionIdentifier, &profileState,
		&a.BatchID, &submittedAt, &outcome, &outcomeAt, &a.OutcomeMessageID, &a.SelectionRationale,
		&a.SubmissionFailed, &a.SubmissionError, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	a.VariantArchetype, a.ProfileState, a.Outcome = domain.Archetype(variantArchetype), domain.Archetype(profileState), domain.OutcomeStage(outcome)
	a.SubmittedAt, _ = time.Parse(time.RFC3339Nano, submittedAt)
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	a.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if outcomeAt.Valid {
		a.OutcomeAt, _ = time.Parse(time.RFC3339Nano, outcomeAt.String)
	}
	return a, nil
}

func (s *EmbeddedStore) GetApplicationByID(ctx context.Context, id string) (*domain.Application, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = ?`, id)
	a, err := scanEmbeddedApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrApplicationNotFound
	}
	return a, err
}

func (s *EmbeddedStore) GetApplicationByListingAndBatch(ctx context.Context, listingID, batchID string) (*domain.Application, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE listing_id = ? AND batch_id = ?`, listingID, batchID)
	a, err := scanEmbeddedApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrApplicationNotFound
	}
	return a, err
}

func (s *EmbeddedStore) GetLatestApplicationByListingID(ctx context.Context, listingID string) (*domain.Application, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE listing_id = ? ORDER BY submitted_at DESC LIMIT 1`, listingID)
	a, err := scanEmbeddedApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrApplicationNotFound
	}
	return a, err
}

func (s *EmbeddedStore) UpdateApplicationOutcome(ctx context.Context, a *domain.Application) error {
	a.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE applications SET outcome=?, outcome_at=?, outcome_message_id=?, updated_at=? WHERE id = ?`,
		string(a.Outcome), formatNullableTime(a.OutcomeAt), a.OutcomeMessageID, a.UpdatedAt.Format(time.RFC3339Nano), a.ID)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, domain.ErrApplicationNotFound)
}

func (s *EmbeddedStore) ListOpenApplications(ctx context.Context, since time.Time) ([]*domain.Application, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+applicationColumns+` FROM applications
		WHERE submitted_at >= ? AND outcome NOT IN ('rejected','offer')
		ORDER BY submitted_at ASC`, since.Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Application
	for rows.Next() {
		a, err := scanEmbeddedApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *EmbeddedStore) ListApplicationsByArchetype(ctx context.Context, arch domain.Archetype) ([]*domain.Application, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE variant_archetype = ? ORDER BY submitted_at DESC`, string(arch))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Application
	for rows.Next() {
		a, err := scanEmbeddedApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- Messages -----------------------------------------------------------

func (s *EmbeddedStore) InsertMessage(ctx context.Context, m *domain.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = time.Now().UTC()
	candidates, err := EncodeStrings(m.CandidateApplicationIDs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, external_id, received_at, sender_address, sender_domain, subject, body,
			source_class, outcome_classification, confidence, matched_application_id, match_method,
			requires_manual_review, candidate_application_ids, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.ExternalID, m.ReceivedAt.Format(time.RFC3339Nano), m.SenderAddress, m.SenderDomain, m.Subject, m.Body,
		string(m.SourceClass), string(m.OutcomeClassification), m.Confidence, m.MatchedApplicationID,
		string(m.MatchMethod), m.RequiresManualReview, candidates, m.CreatedAt.Format(time.RFC3339Nano))
	if isSQLiteUnique(err) {
		return domain.ErrMessageDuplicate
	}
	return err
}

func (s *EmbeddedStore) MessageExists(ctx context.Context, externalID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM messages WHERE external_id = ?)`, externalID).Scan(&exists)
	return exists == 1, err
}

func (s *EmbeddedStore) GetMessageByID(ctx context.Context, id string) (*domain.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, external_id, received_at, sender_address, sender_domain, subject, body,
			source_class, outcome_classification, confidence, matched_application_id, match_method,
			requires_manual_review, candidate_application_ids, created_at
		FROM messages WHERE id = ?`, id)
	m := &domain.Message{}
	var sourceClass, outcomeClass, matchMethod, receivedAt, createdAt string
	var candidates []byte
	err := row.Scan(&m.ID, &m.ExternalID, &receivedAt, &m.SenderAddress, &m.SenderDomain, &m.Subject, &m.Body,
		&sourceClass, &outcomeClass, &m.Confidence, &m.MatchedApplicationID, &matchMethod,
		&m.RequiresManualReview, &candidates, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	m.SourceClass, m.OutcomeClassification, m.MatchMethod = domain.SenderClass(sourceClass), domain.OutcomeStage(outcomeClass), domain.MatchMethod(matchMethod)
	m.ReceivedAt, _ = time.Parse(time.RFC3339Nano, receivedAt)
	m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if m.CandidateApplicationIDs, err = DecodeStrings(candidates); err != nil {
		return nil, err
	}
	return m, nil
}

// --- Known senders --------------------------------------------------------

func (s *EmbeddedStore) UpsertKnownSender(ctx context.Context, k *domain.KnownSender) error {
	if k.FirstSeenAt.IsZero() {
		k.FirstSeenAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO known_senders (address, root_domain, hiring_entity, sender_type, first_seen_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT (address) DO UPDATE SET root_domain=excluded.root_domain, hiring_entity=excluded.hiring_entity, sender_type=excluded.sender_type`,
		k.Address, k.RootDomain, k.HiringEntity, string(k.SenderType), k.FirstSeenAt.Format(time.RFC3339Nano))
	return err
}

func (s *EmbeddedStore) GetKnownSenderByAddress(ctx context.Context, address string) (*domain.KnownSender, error) {
	row := s.db.QueryRowContext(ctx, `SELECT address, root_domain, hiring_entity, sender_type, first_seen_at FROM known_senders WHERE address = ?`, address)
	k := &domain.KnownSender{}
	var senderType, firstSeen string
	if err := row.Scan(&k.Address, &k.RootDomain, &k.HiringEntity, &senderType, &firstSeen); err != nil {
		return nil, err
	}
	k.SenderType = domain.SenderClass(senderType)
	k.FirstSeenAt, _ = time.Parse(time.RFC3339Nano, firstSeen)
	return k, nil
}

// --- Call logs --------------------------------------------------------

func (s *EmbeddedStore) InsertCallLog(ctx context.Context, c *domain.CallLog) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()
	candidates, err := EncodeStrings(c.CandidateApplicationIDs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO call_logs (id, phone, hiring_entity, title, outcome, notes, call_date,
			matched_application_id, requires_manual_review, candidate_application_ids, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.Phone, c.HiringEntity, c.Title, string(c.Outcome), c.Notes, c.CallDate.Format(time.RFC3339Nano),
		c.MatchedApplicationID, c.RequiresManualReview, candidates, c.CreatedAt.Format(time.RFC3339Nano))
	return err
}

// --- Resume variants --------------------------------------------------------

func (s *EmbeddedStore) UpsertResumeVariant(ctx context.Context, v *domain.ResumeVariant) error {
	now := time.Now().UTC()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resume_variants (archetype, version_store_path, current_version_id, embedding,
			embedding_model, alignment_score, last_rewrite_at, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT (archetype) DO UPDATE SET version_store_path=excluded.version_store_path,
			current_version_id=excluded.current_version_id, embedding=excluded.embedding,
			embedding_model=excluded.embedding_model, alignment_score=excluded.alignment_score,
			last_rewrite_at=excluded.last_rewrite_at, updated_at=excluded.updated_at`,
		string(v.Archetype), v.VersionStorePath, v.CurrentVersionID, EncodeVector(v.Embedding.Vector),
		v.Embedding.ModelVersion, v.AlignmentScore, formatNullableTime(v.LastRewriteAt),
		v.CreatedAt.Format(time.RFC3339Nano), v.UpdatedAt.Format(time.RFC3339Nano))
	return err
}

func scanEmbeddedVariant(row interface{ Scan(...any) error }, expectedModel string) (*domain.ResumeVariant, error) {
	v := &domain.ResumeVariant{}
	var archetype, modelVersion, createdAt, updatedAt string
	var embeddingBytes []byte
	var lastRewrite sql.NullString
	err := row.Scan(&archetype, &v.VersionStorePath, &v.CurrentVersionID, &embeddingBytes, &modelVersion,
		&v.AlignmentScore, &lastRewrite, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	v.Archetype = domain.Archetype(archetype)
	if v.Embedding, err = DecodeEmbedding(embeddingBytes, modelVersion, expectedModel); err != nil {
		return nil, err
	}
	v.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	v.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if lastRewrite.Valid {
		v.LastRewriteAt, _ = time.Parse(time.RFC3339Nano, lastRewrite.String)
	}
	return v, nil
}

func (s *EmbeddedStore) GetResumeVariant(ctx context.Context, archetype domain.Archetype) (*domain.ResumeVariant, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+variantColumns+` FROM resume_variants WHERE archetype = ?`, string(archetype))
	v, err := scanEmbeddedVariant(row, s.embeddingModel)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrVariantNotFound
	}
	return v, err
}

func (s *EmbeddedStore) ListResumeVariants(ctx context.Context) ([]*domain.ResumeVariant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+variantColumns+` FROM resume_variants`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.ResumeVariant
	for rows.Next() {
		v, err := scanEmbeddedVariant(rows, s.embeddingModel)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// --- Centroids --------------------------------------------------------

func (s *EmbeddedStore) InsertCentroid(ctx context.Context, c *domain.MarketCentroid) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()
	gained, err := EncodeStrings(c.TermsGained)
	if err != nil {
		return err
	}
	lost, err := EncodeStrings(c.TermsLost)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO market_centroids (id, archetype, window_start, window_end, vector, model_version,
			jd_count, shift_from_prev, has_previous, terms_gained, terms_lost, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, string(c.Archetype), c.WindowStart.Format(time.RFC3339Nano), c.WindowEnd.Format(time.RFC3339Nano),
		EncodeVector(c.Vector), c.ModelVersion, c.JDCount, c.ShiftFromPrev, c.HasPrevious, gained, lost,
		c.CreatedAt.Format(time.RFC3339Nano))
	if isSQLiteUnique(err) {
		return domain.ErrCentroidDuplicate
	}
	return err
}

func scanEmbeddedCentroid(row interface{ Scan(...any) error }) (*domain.MarketCentroid, error) {
	c := &domain.MarketCentroid{}
	var archetype, windowStart, windowEnd, createdAt string
	var vector, gained, lost []byte
	err := row.Scan(&c.ID, &archetype, &windowStart, &windowEnd, &vector, &c.ModelVersion,
		&c.JDCount, &c.ShiftFromPrev, &c.HasPrevious, &gained, &lost, &createdAt)
	if err != nil {
		return nil, err
	}
	c.Archetype = domain.Archetype(archetype)
	c.WindowStart, _ = time.Parse(time.RFC3339Nano, windowStart)
	c.WindowEnd, _ = time.Parse(time.RFC3339Nano, windowEnd)
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	c.Vector = DecodeVector(vector)
	if c.TermsGained, err = DecodeStrings(gained); err != nil {
		return nil, err
	}
	if c.TermsLost, err = DecodeStrings(lost); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *EmbeddedStore) GetLatestCentroid(ctx context.Context, archetype domain.Archetype) (*domain.MarketCentroid, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+centroidColumns+` FROM market_centroids WHERE archetype = ? ORDER BY window_start DESC LIMIT 1`, string(archetype))
	c, err := scanEmbeddedCentroid(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (s *EmbeddedStore) GetCentroidAt(ctx context.Context, archetype domain.Archetype, windowStart time.Time) (*domain.MarketCentroid, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+centroidColumns+` FROM market_centroids WHERE archetype = ? AND window_start = ?`, string(archetype), windowStart.Format(time.RFC3339Nano))
	c, err := scanEmbeddedCentroid(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (s *EmbeddedStore) ListCentroids(ctx context.Context, archetype domain.Archetype, limit int) ([]*domain.MarketCentroid, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+centroidColumns+` FROM market_centroids WHERE archetype = ? ORDER BY window_start DESC LIMIT ?`, string(archetype), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.MarketCentroid
	for rows.Next() {
		c, err := scanEmbeddedCentroid(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Alerts --------------------------------------------------------

func (s *EmbeddedStore) InsertAlert(ctx context.Context, a *domain.DriftAlert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = time.Now().UTC()
	details, err := EncodeDetails(a.Details)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO drift_alerts (id, archetype, kind, metric_value, threshold, details, acknowledged, created_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		a.ID, string(a.Archetype), string(a.Kind), a.MetricValue, a.Threshold, details, a.Acknowledged,
		a.CreatedAt.Format(time.RFC3339Nano))
	return err
}

func (s *EmbeddedStore) GetLatestUnacknowledgedAlert(ctx context.Context, archetype domain.Archetype, kind domain.AlertKind) (*domain.DriftAlert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, archetype, kind, metric_value, threshold, details, acknowledged, created_at
		FROM drift_alerts WHERE archetype = ? AND kind = ? AND acknowledged = 0
		ORDER BY created_at DESC LIMIT 1`, string(archetype), string(kind))
	a, err := scanEmbeddedAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func scanEmbeddedAlert(row interface{ Scan(...any) error }) (*domain.DriftAlert, error) {
	a := &domain.DriftAlert{}
	var arch, kindStr, createdAt string
	var details []byte
	err := row.Scan(&a.ID, &arch, &kindStr, &a.MetricValue, &a.Threshold, &details, &a.Acknowledged, &createdAt)
	if err != nil {
		return nil, err
	}
	a.Archetype, a.Kind = domain.Archetype(arch), domain.AlertKind(kindStr)
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if a.Details, err = DecodeDetails(details); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *EmbeddedStore) AcknowledgeAlert(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE drift_alerts SET acknowledged = 1 WHERE id = ?`, id)
	return err
}

func (s *EmbeddedStore) ListUnacknowledgedAlerts(ctx context.Context) ([]*domain.DriftAlert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, archetype, kind, metric_value, threshold, details, acknowledged, created_at
		FROM drift_alerts WHERE acknowledged = 0 ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.DriftAlert
	for rows.Next() {
		a, err := scanEmbeddedAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- Batches --------------------------------------------------------
//
// SQLite lacks Postgres's partial unique index on an expression in every
// build, so the open-batch invariant is enforced by a plain UNIQUE column
// (open_marker) that is always the literal "1" while a batch is open and
// NULL once closed — the same "single row can exist" trick, expressed in
// a dialect every SQLite build accepts.

func (s *EmbeddedStore) OpenBatch(ctx context.Context, archetype domain.Archetype, now time.Time) (*domain.Batch, error) {
	b := &domain.Batch{ID: uuid.NewString(), Archetype: archetype, OpenedAt: now}
	_, err := s.db.ExecContext(ctx, `INSERT INTO batches (id, archetype, opened_at, app_count, open_marker) VALUES (?,?,?,0,1)`,
		b.ID, string(b.Archetype), b.OpenedAt.Format(time.RFC3339Nano))
	if isSQLiteUnique(err) {
		return nil, domain.ErrBatchAlreadyOpen
	}
	return b, err
}

func (s *EmbeddedStore) GetOpenBatch(ctx context.Context) (*domain.Batch, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, archetype, opened_at, closed_at, app_count FROM batches WHERE closed_at IS NULL`)
	b := &domain.Batch{}
	var archetype, openedAt string
	var closedAt sql.NullString
	err := row.Scan(&b.ID, &archetype, &openedAt, &closedAt, &b.AppCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBatchNotOpen
	}
	if err != nil {
		return nil, err
	}
	b.Archetype = domain.Archetype(archetype)
	b.OpenedAt, _ = time.Parse(time.RFC3339Nano, openedAt)
	if closedAt.Valid {
		b.ClosedAt, _ = time.Parse(time.RFC3339Nano, closedAt.String)
	}
	return b, nil
}

func (s *EmbeddedStore) CloseBatch(ctx context.Context, batchID string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE batches SET closed_at = ?, open_marker = NULL WHERE id = ? AND closed_at IS NULL`, now.Format(time.RFC3339Nano), batchID)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, domain.ErrBatchNotOpen)
}

func (s *EmbeddedStore) IncrementBatchCount(ctx context.Context, batchID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE batches SET app_count = app_count + 1 WHERE id = ?`, batchID)
	return err
}

// --- Funnel rollup --------------------------------------------------------

func (s *EmbeddedStore) FunnelCounts(ctx context.Context) (ports.FunnelCounts, error) {
	fc := ports.FunnelCounts{ByOutcome: map[domain.OutcomeStage]int{}}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM listings),
			(SELECT COUNT(*) FROM listings WHERE intelligence_only),
			(SELECT COUNT(*) FROM listings WHERE classified AND NOT intelligence_only),
			(SELECT COUNT(*) FROM applications),
			(SELECT COUNT(*) FROM messages WHERE requires_manual_review)
	`).Scan(&fc.TotalListings, &fc.IntelligenceOnly, &fc.Queued, &fc.TotalApplications, &fc.ManualReviewMessages)
	if err != nil {
		return fc, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM applications GROUP BY outcome`)
	if err != nil {
		return fc, err
	}
	defer rows.Close()
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return fc, err
		}
		fc.ByOutcome[domain.OutcomeStage(outcome)] = count
	}
	return fc, rows.Err()
}

// --- Watermarks --------------------------------------------------------

func (s *EmbeddedStore) GetWatermark(ctx context.Context, source string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT external_id FROM watermarks WHERE source = ?`, source).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}

func (s *EmbeddedStore) SetWatermark(ctx context.Context, source, id string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watermarks (source, external_id) VALUES (?, ?)
		ON CONFLICT (source) DO UPDATE SET external_id = excluded.external_id`, source, id)
	return err
}

// --- Offline spool replay log ------------------------------------------

// SpoolEntry is one queued write, recorded while this engine stood in
// for an unreachable server engine. Kind identifies which Spooling
// replay case applies; Payload is the JSON-encoded spoolPayload.
type SpoolEntry struct {
	ID        string
	Kind      string
	Payload   []byte
	CreatedAt time.Time
}

func (s *EmbeddedStore) EnqueueReplay(ctx context.Context, kind string, payload []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO spool_replay (id, kind, payload, created_at) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), kind, string(payload), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (s *EmbeddedStore) PendingReplay(ctx context.Context) ([]SpoolEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, kind, payload, created_at FROM spool_replay ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SpoolEntry
	for rows.Next() {
		var e SpoolEntry
		var payload, createdAt string
		if err := rows.Scan(&e.ID, &e.Kind, &payload, &createdAt); err != nil {
			return nil, err
		}
		e.Payload = []byte(payload)
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *EmbeddedStore) DequeueReplay(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM spool_replay WHERE id = ?`, id)
	return err
}

func formatNullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

func checkRowsAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func applyEmbeddedSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, embeddedSchema)
	return err
}

// embeddedSchema mirrors store/migrations/0001_init.up.sql in
// SQLite-compatible syntax: JSONB columns become TEXT (SQLite has no
// native JSON type; the codec still round-trips JSON text), BYTEA
// becomes BLOB, and the open-batch invariant uses a UNIQUE marker column
// instead of Postgres's partial index on an expression.
const embeddedSchema = `
CREATE TABLE IF NOT EXISTS listings (
	id TEXT PRIMARY KEY, external_id TEXT NOT NULL UNIQUE, title TEXT NOT NULL,
	hiring_entity TEXT NOT NULL, full_text TEXT NOT NULL, first_seen_at TEXT NOT NULL,
	search_keyword TEXT NOT NULL DEFAULT '', role_type TEXT NOT NULL DEFAULT 'unknown',
	seniority TEXT NOT NULL DEFAULT 'unknown', technology_tags TEXT NOT NULL DEFAULT '[]',
	archetype_scores TEXT NOT NULL DEFAULT '{}', primary_archetype TEXT NOT NULL DEFAULT '',
	embedding BLOB, embedding_model TEXT NOT NULL DEFAULT '',
	intelligence_only INTEGER NOT NULL DEFAULT 0, classified INTEGER NOT NULL DEFAULT 0,
	classify_attempts INTEGER NOT NULL DEFAULT 0, created_at TEXT NOT NULL, updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_listings_primary_archetype ON listings (primary_archetype);

CREATE TABLE IF NOT EXISTS applications (
	id TEXT PRIMARY KEY, listing_id TEXT NOT NULL REFERENCES listings(id),
	variant_archetype TEXT NOT NULL, version_identifier TEXT NOT NULL, profile_state TEXT NOT NULL,
	batch_id TEXT NOT NULL, submitted_at TEXT NOT NULL, outcome TEXT NOT NULL DEFAULT 'submitted',
	outcome_at TEXT, outcome_message_id TEXT NOT NULL DEFAULT '', selection_rationale TEXT NOT NULL DEFAULT '',
	submission_failed INTEGER NOT NULL DEFAULT 0, submission_error TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL, updated_at TEXT NOT NULL, UNIQUE (listing_id, batch_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY, external_id TEXT NOT NULL UNIQUE, received_at TEXT NOT NULL,
	sender_address TEXT NOT NULL, sender_domain TEXT NOT NULL DEFAULT '', subject TEXT NOT NULL DEFAULT '',
	body TEXT NOT NULL DEFAULT '', source_class TEXT NOT NULL DEFAULT 'unknown',
	outcome_classification TEXT NOT NULL DEFAULT '', confidence REAL NOT NULL DEFAULT 0,
	matched_application_id TEXT NOT NULL DEFAULT '', match_method TEXT NOT NULL DEFAULT '',
	requires_manual_review INTEGER NOT NULL DEFAULT 0, candidate_application_ids TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS known_senders (
	address TEXT PRIMARY KEY, root_domain TEXT NOT NULL DEFAULT '', hiring_entity TEXT NOT NULL DEFAULT '',
	sender_type TEXT NOT NULL DEFAULT 'unknown', first_seen_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS call_logs (
	id TEXT PRIMARY KEY, phone TEXT NOT NULL DEFAULT '', hiring_entity TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '', outcome TEXT NOT NULL, notes TEXT NOT NULL DEFAULT '',
	call_date TEXT NOT NULL, matched_application_id TEXT NOT NULL DEFAULT '',
	requires_manual_review INTEGER NOT NULL DEFAULT 0, candidate_application_ids TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS resume_variants (
	archetype TEXT PRIMARY KEY, version_store_path TEXT NOT NULL DEFAULT '',
	current_version_id TEXT NOT NULL DEFAULT '', embedding BLOB, embedding_model TEXT NOT NULL DEFAULT '',
	alignment_score REAL NOT NULL DEFAULT 0, last_rewrite_at TEXT, created_at TEXT NOT NULL, updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS market_centroids (
	id TEXT PRIMARY KEY, archetype TEXT NOT NULL, window_start TEXT NOT NULL, window_end TEXT NOT NULL,
	vector BLOB NOT NULL, model_version TEXT NOT NULL DEFAULT '', jd_count INTEGER NOT NULL,
	shift_from_prev REAL NOT NULL DEFAULT 0, has_previous INTEGER NOT NULL DEFAULT 0,
	terms_gained TEXT NOT NULL DEFAULT '[]', terms_lost TEXT NOT NULL DEFAULT '[]', created_at TEXT NOT NULL,
	UNIQUE (archetype, window_start)
);

CREATE TABLE IF NOT EXISTS drift_alerts (
	id TEXT PRIMARY KEY, archetype TEXT NOT NULL, kind TEXT NOT NULL, metric_value REAL NOT NULL,
	threshold REAL NOT NULL, details TEXT NOT NULL DEFAULT '{}', acknowledged INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_drift_alerts_archetype_kind ON drift_alerts (archetype, kind, acknowledged);

CREATE TABLE IF NOT EXISTS batches (
	id TEXT PRIMARY KEY, archetype TEXT NOT NULL, opened_at TEXT NOT NULL, closed_at TEXT,
	app_count INTEGER NOT NULL DEFAULT 0, open_marker INTEGER UNIQUE
);

CREATE TABLE IF NOT EXISTS watermarks (
	source TEXT PRIMARY KEY, external_id TEXT NOT NULL
);

-- spool_replay queues writes made against this engine while it is
-- standing in for an unreachable server engine (§6 "writes spill to a
-- local single-file spool"); store.Spooling drains it on Flush.
CREATE TABLE IF NOT EXISTS spool_replay (
	id TEXT PRIMARY KEY, kind TEXT NOT NULL, payload TEXT NOT NULL, created_at TEXT NOT NULL
);
`
