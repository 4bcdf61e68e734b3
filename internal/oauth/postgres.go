package oauth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"moss.dev/internal/ids"
)

// PGStore implements Store on PostgreSQL via database/sql (pgx stdlib
// driver). Expected schema:
//
//	create table oauth_clients (
//	    id             text primary key,
//	    client_id      text not null unique,
//	    secret_hash    text not null default '',
//	    name           text not null,
//	    redirect_uris  jsonb not null default '[]',
//	    allowed_scopes jsonb not null default '[]',
//	    client_type    text not null,
//	    active         boolean not null default true,
//	    created_at     timestamptz not null default now(),
//	    updated_at     timestamptz not null default now()
//	);
//
//	create table oauth_authorization_codes (
//	    id                    text primary key,
//	    code                  text not null unique,
//	    client_id             text not null,
//	    user_id               text not null,
//	    redirect_uri          text not null,
//	    scopes                jsonb not null default '[]',
//	    code_challenge        text not null,
//	    code_challenge_method text not null,
//	    expires_at            timestamptz not null,
//	    used                  boolean not null default false,
//	    created_at            timestamptz not null default now()
//	);
//
//	create table oauth_tokens (
//	    id                 text primary key,
//	    access_token_hash  text not null unique,
//	    refresh_jti        text not null default '',
//	    client_id          text not null,
//	    user_id            text not null default '',
//	    scopes             jsonb not null default '[]',
//	    access_expires_at  timestamptz not null,
//	    refresh_expires_at timestamptz,
//	    revoked            boolean not null default false,
//	    created_at         timestamptz not null default now(),
//	    updated_at         timestamptz not null default now()
//	);
//	create index oauth_tokens_refresh_jti on oauth_tokens(refresh_jti) where refresh_jti <> '';
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Clients(context.Context) ClientStore { return &pgClientStore{db: s.db} }
func (s *PGStore) Codes(context.Context) CodeStore     { return &pgCodeStore{db: s.db} }
func (s *PGStore) Tokens(context.Context) TokenStore   { return &pgTokenStore{db: s.db} }

// Client store -------------------------------------------------------------

type pgClientStore struct{ db *sql.DB }

func (s *pgClientStore) CreateClient(ctx context.Context, c *Client) error {
	if c.ID == "" {
		c.ID = ids.New()
	}
	uris, _ := json.Marshal(c.RedirectURIs)
	scopes, _ := json.Marshal(StringsFromScopes(c.AllowedScopes))
	_, err := s.db.ExecContext(ctx,
		`insert into oauth_clients(id, client_id, secret_hash, name, redirect_uris, allowed_scopes, client_type, active)
		 values($1,$2,$3,$4,$5,$6,$7,$8)`,
		c.ID, c.ClientID, c.SecretHash, c.Name, uris, scopes, string(c.Type), c.Active,
	)
	return err
}

func (s *pgClientStore) FindClient(ctx context.Context, clientID string) (*Client, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, client_id, secret_hash, name, redirect_uris, allowed_scopes, client_type, active, created_at, updated_at
		 from oauth_clients where client_id=$1`, clientID)
	var (
		c          Client
		clientType string
		uris       []byte
		scopes     []byte
	)
	if err := row.Scan(&c.ID, &c.ClientID, &c.SecretHash, &c.Name, &uris, &scopes, &clientType, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c.Type = ClientType(clientType)
	_ = json.Unmarshal(uris, &c.RedirectURIs)
	var raw []string
	_ = json.Unmarshal(scopes, &raw)
	c.AllowedScopes = ScopesFromStrings(raw)
	return &c, nil
}

// Code store ---------------------------------------------------------------

type pgCodeStore struct{ db *sql.DB }

func (s *pgCodeStore) CreateAuthorizationCode(ctx context.Context, rec *CodeRecord) error {
	if rec.ID == "" {
		rec.ID = ids.New()
	}
	scopes, _ := json.Marshal(StringsFromScopes(rec.Scopes))
	_, err := s.db.ExecContext(ctx,
		`insert into oauth_authorization_codes(id, code, client_id, user_id, redirect_uri, scopes, code_challenge, code_challenge_method, expires_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		rec.ID, rec.Code, rec.ClientID, rec.UserID, rec.RedirectURI, scopes,
		rec.CodeChallenge, rec.CodeChallengeMethod, rec.ExpiresAt,
	)
	return err
}

// ConsumeAuthorizationCode is a single conditional update: the row flips to
// used and comes back only when it was unused and unexpired, so concurrent
// exchanges leave exactly one winner.
func (s *pgCodeStore) ConsumeAuthorizationCode(ctx context.Context, code string) (*CodeRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`update oauth_authorization_codes
		    set used = true
		  where code = $1 and used = false and expires_at > now()
		 returning id, code, client_id, user_id, redirect_uri, scopes, code_challenge, code_challenge_method, expires_at, created_at`,
		code)
	var (
		rec    CodeRecord
		scopes []byte
	)
	if err := row.Scan(&rec.ID, &rec.Code, &rec.ClientID, &rec.UserID, &rec.RedirectURI, &scopes,
		&rec.CodeChallenge, &rec.CodeChallengeMethod, &rec.ExpiresAt, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec.Used = true
	var raw []string
	_ = json.Unmarshal(scopes, &raw)
	rec.Scopes = ScopesFromStrings(raw)
	return &rec, nil
}

// Token store --------------------------------------------------------------

type pgTokenStore struct{ db *sql.DB }

func (s *pgTokenStore) RecordIssuance(ctx context.Context, rec *TokenRecord) error {
	return s.insert(ctx, s.db, rec)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *pgTokenStore) insert(ctx context.Context, db execer, rec *TokenRecord) error {
	if rec.ID == "" {
		rec.ID = ids.New()
	}
	scopes, _ := json.Marshal(StringsFromScopes(rec.Scopes))
	var refreshExp any
	if !rec.RefreshExpiresAt.IsZero() {
		refreshExp = rec.RefreshExpiresAt
	}
	_, err := db.ExecContext(ctx,
		`insert into oauth_tokens(id, access_token_hash, refresh_jti, client_id, user_id, scopes, access_expires_at, refresh_expires_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8)`,
		rec.ID, rec.AccessTokenHash, rec.RefreshJTI, rec.ClientID, rec.UserID, scopes,
		rec.AccessExpiresAt, refreshExp,
	)
	return err
}

const tokenColumns = `id, access_token_hash, refresh_jti, client_id, user_id, scopes, access_expires_at, refresh_expires_at, revoked, created_at, updated_at`

func (s *pgTokenStore) FindByAccessHash(ctx context.Context, hash string) (*TokenRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+tokenColumns+` from oauth_tokens where access_token_hash=$1`, hash)
	return scanToken(row)
}

func (s *pgTokenStore) FindByRefreshJTI(ctx context.Context, jti string) (*TokenRecord, error) {
	if jti == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`select `+tokenColumns+` from oauth_tokens where refresh_jti=$1`, jti)
	return scanToken(row)
}

func (s *pgTokenStore) Revoke(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`update oauth_tokens set revoked = true, updated_at = now() where id=$1 and revoked = false`, id)
	return err
}

func (s *pgTokenStore) Rotate(ctx context.Context, oldID string, newRec *TokenRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`update oauth_tokens set revoked = true, updated_at = now() where id=$1 and revoked = false`, oldID); err != nil {
		return err
	}
	if err := s.insert(ctx, tx, newRec); err != nil {
		return err
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*TokenRecord, error) {
	var (
		rec        TokenRecord
		scopes     []byte
		refreshExp sql.NullTime
	)
	if err := row.Scan(&rec.ID, &rec.AccessTokenHash, &rec.RefreshJTI, &rec.ClientID, &rec.UserID,
		&scopes, &rec.AccessExpiresAt, &refreshExp, &rec.Revoked, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if refreshExp.Valid {
		rec.RefreshExpiresAt = refreshExp.Time
	}
	var raw []string
	_ = json.Unmarshal(scopes, &raw)
	rec.Scopes = ScopesFromStrings(raw)
	return &rec, nil
}
