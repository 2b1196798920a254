package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Migrate creates the schema if it does not exist yet.  Statements are
// idempotent so the server can run them on every start.
//
// Uniqueness does the heavy lifting for concurrency control:
//   - room_occupants (room_id, role): one occupant per slot, the final
//     arbiter when concurrent joins race past the precondition check.
//   - escrow_transactions (room_id, active): active is 1 while the
//     transaction is running and NULL once terminal; NULLs do not
//     collide in MySQL unique indexes, so terminal rows accumulate
//     while at most one active row exists per room.
//   - evidence_files (transaction_id, file_type, open): same NULL
//     trick, at most one PENDING file per type per transaction.
//   - audit_entries (room_id, seq): per-room gapless ordering.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS arbiters (
			id            BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
			email         VARCHAR(255)    NOT NULL,
			password_hash VARCHAR(255)    NOT NULL,
			display_name  VARCHAR(100)    NOT NULL,
			created_at    DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			PRIMARY KEY (id),
			UNIQUE KEY uq_arbiters_email (email)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

		`CREATE TABLE IF NOT EXISTS refresh_tokens (
			id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
			arbiter_id BIGINT UNSIGNED NOT NULL,
			token_hash CHAR(64)        NOT NULL,
			expires_at DATETIME        NOT NULL,
			revoked_at DATETIME        NULL,
			created_at DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (id),
			UNIQUE KEY uq_refresh_tokens_hash (token_hash),
			KEY idx_refresh_tokens_arbiter (arbiter_id),
			CONSTRAINT fk_refresh_tokens_arbiter FOREIGN KEY (arbiter_id) REFERENCES arbiters (id) ON DELETE CASCADE
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

		`CREATE TABLE IF NOT EXISTS rooms (
			id          BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
			room_number VARCHAR(32)     NOT NULL,
			status      VARCHAR(10)     NOT NULL DEFAULT 'FREE',
			expires_at  DATETIME        NOT NULL,
			created_at  DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			PRIMARY KEY (id),
			UNIQUE KEY uq_rooms_number (room_number)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

		`CREATE TABLE IF NOT EXISTS room_occupants (
			id                 BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
			room_id            BIGINT UNSIGNED NOT NULL,
			role               VARCHAR(8)      NOT NULL,
			display_name       VARCHAR(100)    NOT NULL,
			contact            VARCHAR(255)    NOT NULL,
			session_token_hash CHAR(64)        NOT NULL,
			is_online          TINYINT(1)      NOT NULL DEFAULT 1,
			joined_at          DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_seen_at       DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (id),
			UNIQUE KEY uq_room_occupants_slot (room_id, role),
			UNIQUE KEY uq_room_occupants_session (session_token_hash),
			KEY idx_room_occupants_contact (contact),
			CONSTRAINT fk_room_occupants_room FOREIGN KEY (room_id) REFERENCES rooms (id) ON DELETE CASCADE
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

		`CREATE TABLE IF NOT EXISTS escrow_transactions (
			id                        BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
			room_id                   BIGINT UNSIGNED NOT NULL,
			buyer_occupant_id         BIGINT UNSIGNED NOT NULL,
			seller_occupant_id        BIGINT UNSIGNED NULL,
			amount_cents              BIGINT          NOT NULL DEFAULT 0,
			currency                  CHAR(3)         NOT NULL DEFAULT 'USD',
			commission_cents          BIGINT          NOT NULL DEFAULT 0,
			fee_cents                 BIGINT          NOT NULL DEFAULT 0,
			total_cents               BIGINT          NOT NULL DEFAULT 0,
			status                    VARCHAR(40)     NOT NULL,
			active                    TINYINT(1)      NULL DEFAULT 1,
			payment_rejection_reason  TEXT            NULL,
			shipping_rejection_reason TEXT            NULL,
			arbiter_notes             TEXT            NULL,
			payment_verified_by       BIGINT UNSIGNED NULL,
			payment_verified_at       DATETIME        NULL,
			shipping_verified_by      BIGINT UNSIGNED NULL,
			shipping_verified_at      DATETIME        NULL,
			receipt_confirmed_at      DATETIME        NULL,
			funds_released_by         BIGINT UNSIGNED NULL,
			funds_released_at         DATETIME        NULL,
			completed_at              DATETIME        NULL,
			created_at                DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at                DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			PRIMARY KEY (id),
			UNIQUE KEY uq_escrow_transactions_active (room_id, active),
			KEY idx_escrow_transactions_room (room_id),
			CONSTRAINT fk_escrow_transactions_room FOREIGN KEY (room_id) REFERENCES rooms (id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

		`CREATE TABLE IF NOT EXISTS evidence_files (
			id               BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
			transaction_id   BIGINT UNSIGNED NOT NULL,
			file_type        VARCHAR(20)     NOT NULL,
			file_name        VARCHAR(255)    NOT NULL,
			blob_ref         VARCHAR(255)    NOT NULL,
			size_bytes       BIGINT          NOT NULL DEFAULT 0,
			mime_type        VARCHAR(100)    NOT NULL DEFAULT '',
			uploader_role    VARCHAR(8)      NOT NULL,
			status           VARCHAR(10)     NOT NULL DEFAULT 'PENDING',
			open             TINYINT(1)      NULL DEFAULT 1,
			verified_by      BIGINT UNSIGNED NULL,
			verified_at      DATETIME        NULL,
			rejection_reason TEXT            NULL,
			created_at       DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (id),
			UNIQUE KEY uq_evidence_files_pending (transaction_id, file_type, open),
			KEY idx_evidence_files_txn (transaction_id),
			CONSTRAINT fk_evidence_files_txn FOREIGN KEY (transaction_id) REFERENCES escrow_transactions (id) ON DELETE CASCADE
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

		`CREATE TABLE IF NOT EXISTS audit_entries (
			id          BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
			room_id     BIGINT UNSIGNED NOT NULL,
			seq         BIGINT UNSIGNED NOT NULL,
			action      VARCHAR(40)     NOT NULL,
			actor_name  VARCHAR(100)    NOT NULL,
			actor_role  VARCHAR(8)      NOT NULL,
			description VARCHAR(500)    NOT NULL,
			created_at  DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (id),
			UNIQUE KEY uq_audit_entries_seq (room_id, seq),
			CONSTRAINT fk_audit_entries_room FOREIGN KEY (room_id) REFERENCES rooms (id) ON DELETE CASCADE
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	}

	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
