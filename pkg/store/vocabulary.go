package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/ghanavoice/ledger/internal/errs"
)

// VocabularyEntry is a persisted product vocabulary row: the canonical name,
// its known variants (aliases), and a running frequency count. Only the name
// and variants are loaded into the in-memory normalizer at startup.
type VocabularyEntry struct {
	ID               string
	CanonicalName    string
	Variants         []string
	Category         string
	TypicalPriceMin  float64
	HasTypicalMin    bool
	TypicalPriceMax  float64
	HasTypicalMax    bool
	Frequency        uint64
}

// UpsertProduct inserts or replaces a vocabulary entry by canonical name,
// assigning a uuid if it has none yet.
func (s *Store) UpsertProduct(ctx context.Context, e VocabularyEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	variantsJSON, err := json.Marshal(e.Variants)
	if err != nil {
		return wrapStoreErr("marshal variants", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO product_vocabulary (id, canonical_name, variants_json, category, typical_price_min, typical_price_max, frequency)
			VALUES (?,?,?,?,?,?,?)
			ON CONFLICT(canonical_name) DO UPDATE SET
				variants_json = excluded.variants_json,
				category = excluded.category,
				typical_price_min = excluded.typical_price_min,
				typical_price_max = excluded.typical_price_max`,
			e.ID, e.CanonicalName, string(variantsJSON), nullString(e.Category),
			nullFloat(e.HasTypicalMin, e.TypicalPriceMin), nullFloat(e.HasTypicalMax, e.TypicalPriceMax), e.Frequency,
		)
		return wrapStoreErr("upsert product vocabulary", err)
	})
}

// IncrementFrequency bumps the frequency counter for canonicalName by one.
// pipeline.persist calls it after each saved transaction; the vocabulary
// normalizer does not call it when it matches a phrase.
func (s *Store) IncrementFrequency(ctx context.Context, canonicalName string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE product_vocabulary SET frequency = frequency + 1 WHERE canonical_name = ?`, canonicalName)
		if err != nil {
			return wrapStoreErr("increment product frequency", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return wrapStoreErr("increment product frequency", err)
		}
		if n == 0 {
			return errs.New(errs.StoreError, "product vocabulary entry not found: "+canonicalName, false)
		}
		return nil
	})
}

// ListProducts returns every vocabulary entry, used to seed the in-memory
// normalizer at startup.
func (s *Store) ListProducts(ctx context.Context) ([]VocabularyEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, canonical_name, variants_json, category, typical_price_min, typical_price_max, frequency
		FROM product_vocabulary`)
	if err != nil {
		return nil, wrapStoreErr("list product vocabulary", err)
	}
	defer rows.Close()

	var out []VocabularyEntry
	for rows.Next() {
		var e VocabularyEntry
		var variantsJSON string
		var category sql.NullString
		var priceMin, priceMax sql.NullFloat64

		if err := rows.Scan(&e.ID, &e.CanonicalName, &variantsJSON, &category, &priceMin, &priceMax, &e.Frequency); err != nil {
			return nil, wrapStoreErr("scan product vocabulary", err)
		}
		if err := json.Unmarshal([]byte(variantsJSON), &e.Variants); err != nil {
			return nil, wrapStoreErr("unmarshal variants", err)
		}
		e.Category = category.String
		e.HasTypicalMin, e.TypicalPriceMin = priceMin.Valid, priceMin.Float64
		e.HasTypicalMax, e.TypicalPriceMax = priceMax.Valid, priceMax.Float64
		out = append(out, e)
	}
	return out, wrapStoreErr("list product vocabulary", rows.Err())
}
