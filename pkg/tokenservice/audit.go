package tokenservice

import (
	"context"
	"fmt"

	"github.com/gafaelfawr/gafaelfawr/pkg/store/db"
	"github.com/gafaelfawr/gafaelfawr/pkg/token"
)

// AlertKind classifies an audit finding.
type AlertKind string

// Audit alert kinds, one per reconciliation step in spec.md §4.1 audit.
const (
	AlertMissingFromKV       AlertKind = "missing_from_kv"
	AlertMissingFromRelation AlertKind = "missing_from_relational"
	AlertFieldMismatch       AlertKind = "field_mismatch"
	AlertExpirationViolation AlertKind = "expiration_violation"
	AlertOrphanedParent      AlertKind = "orphaned_parent"
	AlertUnknownScope        AlertKind = "unknown_scope"
)

// Alert is one audit finding. Key identifies the token (or, for
// AlertUnknownScope, the token carrying the unknown scope); Detail is a
// human-readable description; Fixed reports whether Audit(fix=true)
// repaired the condition.
type Alert struct {
	Kind   AlertKind
	Key    string
	Detail string
	Fixed  bool
}

// Audit runs the eight-step reconciliation pass described in spec.md
// §4.1 and §9: it is last-writer-wins, not a consensus protocol. KV is
// canonical for scopes (a historical bug could leave the relational
// side stale); the relational store is canonical for the existence of
// already-TTL-evicted KV rows.
func (s *Service) Audit(ctx context.Context, fix bool) ([]Alert, error) {
	var alerts []Alert

	kvKeys, err := s.kv.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing kv keys: %w", err)
	}
	relTokens, err := s.db.ListTokens(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("listing relational tokens: %w", err)
	}

	kvSet := make(map[string]struct{}, len(kvKeys))
	for _, k := range kvKeys {
		kvSet[k] = struct{}{}
	}
	relByKey := make(map[string]token.Info, len(relTokens))
	for _, info := range relTokens {
		relByKey[info.Token] = info
	}

	now := s.now()

	// Step 2: relational rows with no matching KV key.
	for _, info := range relTokens {
		if _, ok := kvSet[info.Token]; ok {
			continue
		}
		if info.Expires != nil && !info.Expires.After(now) {
			continue // already past expiry; the next sweep will collect it
		}
		alert := Alert{Kind: AlertMissingFromKV, Key: info.Token, Detail: "relational row has no corresponding kv entry"}
		if fix {
			if _, err := s.db.Modify(ctx, info.Token, modifyExpiresNow(now)); err != nil {
				return nil, fmt.Errorf("fixing missing-from-kv row %s: %w", info.Token, err)
			}
			alert.Fixed = true
		}
		alerts = append(alerts, alert)
	}

	// Step 3: KV keys with no matching relational row.
	for _, key := range kvKeys {
		if _, ok := relByKey[key]; ok {
			continue
		}
		alert := Alert{Kind: AlertMissingFromRelation, Key: key, Detail: "kv entry has no corresponding relational row"}
		if fix {
			if err := s.kv.Delete(ctx, key); err != nil {
				return nil, fmt.Errorf("fixing orphaned kv entry %s: %w", key, err)
			}
			alert.Fixed = true
		}
		alerts = append(alerts, alert)
	}

	// Step 4: username, type, sorted scopes, created, and expires must
	// agree between the two stores. KV is canonical for scopes and
	// expires, so those two are auto-repaired under fix; username, type,
	// and created are immutable by design, so a divergence there is
	// corruption to report, not drift to reconcile.
	for _, key := range kvKeys {
		info, ok := relByKey[key]
		if !ok {
			continue
		}
		data, err := s.kv.GetDataByKey(ctx, key)
		if err != nil {
			continue // evicted between the List and the Get; step 3 already flagged any real mismatch
		}

		if data.Username != info.Username {
			alerts = append(alerts, Alert{
				Kind: AlertFieldMismatch, Key: key,
				Detail: fmt.Sprintf("kv username %q does not match relational username %q", data.Username, info.Username),
			})
		}
		if data.Type != info.Type {
			alerts = append(alerts, Alert{
				Kind: AlertFieldMismatch, Key: key,
				Detail: fmt.Sprintf("kv type %q does not match relational type %q", data.Type, info.Type),
			})
		}
		if !data.Created.Equal(info.Created) {
			alerts = append(alerts, Alert{
				Kind: AlertFieldMismatch, Key: key,
				Detail: fmt.Sprintf("kv created %s does not match relational created %s", data.Created, info.Created),
			})
		}

		if !token.ScopesEqual(data.Scopes, info.Scopes) {
			alert := Alert{Kind: AlertFieldMismatch, Key: key, Detail: "kv and relational scopes diverge"}
			if fix {
				if _, err := s.db.Modify(ctx, key, dbModifyScopes(data.Scopes)); err != nil {
					return nil, fmt.Errorf("fixing scope mismatch for %s: %w", key, err)
				}
				alert.Fixed = true
			}
			alerts = append(alerts, alert)
		}

		if !expiresEqual(data.Expires, info.Expires) {
			alert := Alert{Kind: AlertFieldMismatch, Key: key, Detail: "kv and relational expires diverge"}
			if fix {
				if _, err := s.db.Modify(ctx, key, db.ModifyParams{Expires: data.Expires, HasExpires: true}); err != nil {
					return nil, fmt.Errorf("fixing expires mismatch for %s: %w", key, err)
				}
				alert.Fixed = true
			}
			alerts = append(alerts, alert)
		}
	}

	// Step 5: I4, derived token expires must not exceed parent's.
	derived, err := s.db.ListWithParents(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing derived tokens: %w", err)
	}
	for _, child := range derived {
		parent, ok := relByKey[*child.Parent]
		if !ok {
			continue // step 6 reports this as an orphan
		}
		if expiresExceeds(child.Expires, parent.Expires) {
			alerts = append(alerts, Alert{
				Kind: AlertExpirationViolation, Key: child.Token,
				Detail: fmt.Sprintf("expires after parent %s", parent.Token),
			})
		}
	}

	// Step 6: orphaned parent references.
	orphans, err := s.db.ListOrphaned(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing orphaned tokens: %w", err)
	}
	for _, orphan := range orphans {
		alerts = append(alerts, Alert{
			Kind: AlertOrphanedParent, Key: orphan.Token,
			Detail: fmt.Sprintf("parent %s does not exist", *orphan.Parent),
		})
	}

	// Step 7: every live KV entry's scopes must be known.
	if s.cfg.KnownScopes != nil {
		for _, key := range kvKeys {
			data, err := s.kv.GetDataByKey(ctx, key)
			if err != nil {
				continue
			}
			for _, scope := range data.Scopes {
				if !s.cfg.KnownScope(scope) {
					alerts = append(alerts, Alert{
						Kind: AlertUnknownScope, Key: key,
						Detail: fmt.Sprintf("scope %q is not in the configured known-scope set", scope),
					})
				}
			}
		}
	}

	return alerts, nil
}
