package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"meme-token-ledger/internal/domain"
	"meme-token-ledger/internal/solana"
	"meme-token-ledger/internal/storage"
)

const proposalColumns = `
	id::text, mint, account, proposer, description, proposal_kind, new_bps, status,
	start_time, end_time, for_votes::text, against_votes::text, executed
`

// CreateProposal locks the governance row, applies fn and stores the
// returned proposal together with the updated governance record.
func (s *Store) CreateProposal(ctx context.Context, mint solana.Pubkey, fn storage.ProposalCreate) (*domain.Proposal, error) {
	var created *domain.Proposal
	err := s.pool.withTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		gov, err := loadGovernance(ctx, tx, mint, true)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(ctx, tx, mint, false)
		if err != nil {
			return err
		}

		p, err := fn(gov, cfg)
		if err != nil {
			return err
		}
		if p == nil || p.Type == nil {
			return storage.ErrInvalidInput
		}

		_, err = tx.Exec(ctx, `
			UPDATE governance_configs
			SET proposals = $2, executed_proposals = $3, proposal_count = $4,
				min_proposal_threshold_bps = $5, min_quorum_bps = $6
			WHERE mint = $1
		`, mint.String(), pubkeyStrings(gov.Proposals), pubkeyStrings(gov.ExecutedProposals),
			numeric(gov.ProposalCount), gov.MinProposalThresholdBps, gov.MinQuorumBps)
		if err != nil {
			return fmt.Errorf("update governance config: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO proposals (
				mint, id, account, proposer, description, proposal_kind, new_bps, status,
				start_time, end_time, for_votes, against_votes, executed
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`,
			mint.String(), numeric(p.ID), p.Account.String(), p.Proposer.String(), p.Description,
			string(p.Type.Kind()), p.Type.NewBps(), string(p.Status), p.StartTime, p.EndTime,
			numeric(p.ForVotes), numeric(p.AgainstVotes), p.Executed,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert proposal: %w", err)
		}
		if err := insertVoters(ctx, tx, mint, p.ID, 0, p.Voters); err != nil {
			return err
		}

		created = p.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetProposal retrieves a proposal with its voter set. Returns ErrNotFound if not exists.
func (s *Store) GetProposal(ctx context.Context, mint solana.Pubkey, id uint64) (*domain.Proposal, error) {
	return loadProposal(ctx, s.pool, mint, id, false)
}

// ListProposals retrieves the proposals of a mint ordered by id ASC.
func (s *Store) ListProposals(ctx context.Context, mint solana.Pubkey) ([]*domain.Proposal, error) {
	if _, err := loadConfig(ctx, s.pool, mint, false); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE mint = $1 ORDER BY id ASC`, mint.String())
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	var result []*domain.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proposals: %w", err)
	}

	for _, p := range result {
		if p.Voters, err = loadVoters(ctx, s.pool, mint, p.ID); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// UpdateProposal locks one proposal row, applies fn and writes it back on
// success. Voters are append-only.
func (s *Store) UpdateProposal(ctx context.Context, mint solana.Pubkey, id uint64, fn storage.ProposalUpdate) (*domain.Proposal, error) {
	var updated *domain.Proposal
	err := s.pool.withTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		p, err := loadProposal(ctx, tx, mint, id, true)
		if err != nil {
			return err
		}

		voted := len(p.Voters)
		if err := fn(p); err != nil {
			return err
		}
		if len(p.Voters) < voted {
			return fmt.Errorf("proposal %d voters shrank: %w", id, storage.ErrInvalidInput)
		}

		_, err = tx.Exec(ctx, `
			UPDATE proposals
			SET status = $3, for_votes = $4, against_votes = $5, executed = $6
			WHERE mint = $1 AND id = $2
		`, mint.String(), numeric(id), string(p.Status), numeric(p.ForVotes), numeric(p.AgainstVotes), p.Executed)
		if err != nil {
			return fmt.Errorf("update proposal: %w", err)
		}
		if err := insertVoters(ctx, tx, mint, id, voted, p.Voters[voted:]); err != nil {
			return err
		}

		updated = p.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func loadProposal(ctx context.Context, q querier, mint solana.Pubkey, id uint64, lock bool) (*domain.Proposal, error) {
	row := q.QueryRow(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE mint = $1 AND id = $2`+forUpdate(lock), mint.String(), numeric(id))
	p, err := scanProposal(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get proposal: %w", err)
	}

	if p.Voters, err = loadVoters(ctx, q, mint, id); err != nil {
		return nil, err
	}
	return p, nil
}

func scanProposal(row pgx.Row) (*domain.Proposal, error) {
	var (
		p      domain.Proposal
		kind   string
		newBps uint16
		status string
	)
	err := row.Scan(
		u64(&p.ID), pubkey(&p.Mint), pubkey(&p.Account), pubkey(&p.Proposer), &p.Description,
		&kind, &newBps, &status, &p.StartTime, &p.EndTime,
		u64(&p.ForVotes), u64(&p.AgainstVotes), &p.Executed,
	)
	if err != nil {
		return nil, err
	}

	p.Type, err = domain.NewProposalType(domain.ProposalKind(kind), newBps)
	if err != nil {
		return nil, err
	}
	p.Status = domain.ProposalStatus(status)
	return &p, nil
}

func loadVoters(ctx context.Context, q querier, mint solana.Pubkey, id uint64) ([]solana.Pubkey, error) {
	rows, err := q.Query(ctx, `
		SELECT voter FROM proposal_voters
		WHERE mint = $1 AND proposal_id = $2
		ORDER BY position ASC
	`, mint.String(), numeric(id))
	if err != nil {
		return nil, fmt.Errorf("get proposal voters: %w", err)
	}
	defer rows.Close()

	voters := make([]solana.Pubkey, 0)
	for rows.Next() {
		var v solana.Pubkey
		if err := rows.Scan(pubkey(&v)); err != nil {
			return nil, fmt.Errorf("scan proposal voter: %w", err)
		}
		voters = append(voters, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proposal voters: %w", err)
	}
	return voters, nil
}

func insertVoters(ctx context.Context, q querier, mint solana.Pubkey, id uint64, offset int, voters []solana.Pubkey) error {
	for i, v := range voters {
		_, err := q.Exec(ctx, `
			INSERT INTO proposal_voters (mint, proposal_id, position, voter)
			VALUES ($1, $2, $3, $4)
		`, mint.String(), numeric(id), offset+i, v.String())
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert proposal voter: %w", err)
		}
	}
	return nil
}
