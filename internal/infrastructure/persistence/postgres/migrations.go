package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: SUBJECT CREDITS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS subject_credits (
    paper_code VARCHAR(32) PRIMARY KEY,
    paper_name TEXT NOT NULL DEFAULT '',
    theory NUMERIC(5,2) NOT NULL DEFAULT 0,
    practical NUMERIC(5,2),
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT paper_code_normalized CHECK (paper_code = upper(btrim(paper_code)) AND paper_code <> ''),
    CONSTRAINT credits_non_negative CHECK (theory >= 0 AND (practical IS NULL OR practical >= 0)),
    CONSTRAINT credits_positive CHECK (theory + COALESCE(practical, 0) > 0)
);

CREATE INDEX IF NOT EXISTS idx_subject_credits_updated_at ON subject_credits(updated_at DESC);

CREATE OR REPLACE FUNCTION subject_credits_touch()
RETURNS TRIGGER AS $$
BEGIN
    NEW.updated_at = NOW();
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS subject_credits_touch ON subject_credits;
CREATE TRIGGER subject_credits_touch
    BEFORE UPDATE ON subject_credits
    FOR EACH ROW
    EXECUTE FUNCTION subject_credits_touch();
`

const migration001Down = `
DROP TRIGGER IF EXISTS subject_credits_touch ON subject_credits;
DROP FUNCTION IF EXISTS subject_credits_touch();
DROP TABLE IF EXISTS subject_credits;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: IMPORT AUDIT
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS credit_imports (
    id BIGSERIAL PRIMARY KEY,
    source VARCHAR(100) NOT NULL,
    items INTEGER NOT NULL,
    imported_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_credit_imports_at ON credit_imports(imported_at DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS credit_imports;
`
