/*
resolver.go - Invitation chain traversal

PURPOSE:
  Given a source user, resolves the ordered list of ancestors (inviter,
  inviter's inviter, ...) up to 20 levels, assigning each a commission
  level. The resolver is the only component that walks the graph; the
  engine consumes its output.

ALGORITHM:
  1. Look up the source user (ErrUserNotFound if absent)
  2. No inviter -> empty chain, no error (root users are normal)
  3. Ask the store for the inviter chain in ONE bounded query
     (LoadInviterChain), so latency is independent of chain depth
  4. Walk the returned users with a visited-set of invite codes;
     a repeated code means the graph is corrupted -> ErrCycleDetected
  5. Truncate at level 20; deeper ancestors receive nothing

CYCLE SAFETY:
  The store's bounded query terminates even on a cyclic graph (it just
  returns repeated rows up to the depth limit); the visited-set here is
  what turns that into an explicit CycleError instead of double credits.

SEE ALSO:
  - store.go: GraphStore.LoadInviterChain contract
  - engine.go: Consumer
*/
package referral

import "context"

// Resolver walks the invitation graph.
type Resolver struct {
	Graph GraphStore
}

func NewResolver(graph GraphStore) *Resolver {
	return &Resolver{Graph: graph}
}

// Resolve returns the ancestor chain for a source user, closest first,
// with levels 1..min(chainLength, MaxLevels).
//
// Errors:
//   - ErrUserNotFound: sourceUserID does not exist
//   - ErrCycleDetected: an invite code repeats before the chain ends
//
// A source user with no inviter yields an empty chain and a nil error.
func (r *Resolver) Resolve(ctx context.Context, sourceUserID UserID) ([]ChainLink, error) {
	source, err := r.Graph.GetUser(ctx, sourceUserID)
	if err != nil {
		return nil, err
	}
	if !source.HasInviter() {
		return []ChainLink{}, nil
	}

	chain, err := r.Graph.LoadInviterChain(ctx, source.InviterCode, MaxLevels)
	if err != nil {
		return nil, err
	}

	visited := map[InviteCode]bool{source.InviteCode: true}
	links := make([]ChainLink, 0, len(chain))

	for i, ancestor := range chain {
		level := i + 1
		if visited[ancestor.InviteCode] {
			return nil, &CycleError{
				SourceUserID: sourceUserID,
				RepeatedCode: ancestor.InviteCode,
				AtLevel:      level,
			}
		}
		visited[ancestor.InviteCode] = true

		links = append(links, ChainLink{
			UserID:     ancestor.ID,
			InviteCode: ancestor.InviteCode,
			Level:      level,
		})
	}

	return links, nil
}
