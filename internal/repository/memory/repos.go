package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/attaboy/tower/internal/domain"
	"github.com/google/uuid"
)

type playerRepo struct{ tx *memTx }

func (r *playerRepo) Get(_ context.Context, id int64) (*domain.Player, error) {
	return r.tx.st.players[id].Clone(), nil
}

func (r *playerRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Player, error) {
	return r.Get(ctx, id)
}

func (r *playerRepo) Create(_ context.Context, p *domain.Player) error {
	if _, exists := r.tx.st.players[p.ID]; exists {
		return domain.ErrConflict(fmt.Sprintf("player %d already exists", p.ID))
	}
	r.tx.st.players[p.ID] = p.Clone()
	return nil
}

func (r *playerRepo) Update(_ context.Context, p *domain.Player) error {
	if _, exists := r.tx.st.players[p.ID]; !exists {
		return domain.ErrNotFound("player", fmt.Sprint(p.ID))
	}
	if p.HP < 0 || p.HP > p.MaxHP {
		return fmt.Errorf("update player %d: hp %d outside [0, %d]", p.ID, p.HP, p.MaxHP)
	}
	r.tx.st.players[p.ID] = p.Clone()
	return nil
}

func (r *playerRepo) ListByGuild(_ context.Context, guildID int64) ([]*domain.Player, error) {
	var out []*domain.Player
	for _, p := range r.tx.st.players {
		if p.GuildID != nil && *p.GuildID == guildID {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *playerRepo) ResetActiveStates(_ context.Context) (int64, error) {
	var n int64
	for id, p := range r.tx.st.players {
		if p.IsIdle() {
			continue
		}
		cp := p.Clone()
		cp.State = domain.StateIdle
		cp.UpdatedAt = r.tx.now()
		r.tx.st.players[id] = cp
		n++
	}
	return n, nil
}

type balanceRepo struct{ tx *memTx }

func (r *balanceRepo) Get(_ context.Context, playerID int64, currency domain.Currency) (int64, error) {
	return r.tx.st.balances[balanceKey{playerID, currency}], nil
}

func (r *balanceRepo) GetAll(_ context.Context, playerID int64) (domain.BalanceSheet, error) {
	sheet := domain.BalanceSheet{}
	for _, c := range domain.AllCurrencies() {
		sheet[c] = r.tx.st.balances[balanceKey{playerID, c}]
	}
	return sheet, nil
}

func (r *balanceRepo) Apply(_ context.Context, playerID int64, currency domain.Currency, delta int64) (int64, error) {
	key := balanceKey{playerID, currency}
	current := r.tx.st.balances[key]
	if current+delta < 0 {
		return 0, domain.ErrInsufficientFunds(currency, -delta, current)
	}
	r.tx.st.balances[key] = current + delta
	return current + delta, nil
}

type transactionRepo struct{ tx *memTx }

func (r *transactionRepo) FindByReference(_ context.Context, reference string) (*domain.TransactionRecord, error) {
	idx, ok := r.tx.st.refs[reference]
	if !ok {
		return nil, nil
	}
	return cloneRecord(r.tx.st.txs[idx]), nil
}

func (r *transactionRepo) Insert(_ context.Context, params domain.PostEntryParams, balanceAfter int64) (*domain.TransactionRecord, error) {
	if params.Reference != nil {
		if _, dup := r.tx.st.refs[*params.Reference]; dup {
			return nil, domain.ErrConflict("duplicate transaction reference " + *params.Reference)
		}
	}
	details := params.Details
	if details == nil {
		details = json.RawMessage(`{}`)
	}
	r.tx.st.nextTxID++
	rec := &domain.TransactionRecord{
		ID:           r.tx.st.nextTxID,
		Currency:     params.Currency,
		Amount:       params.Amount,
		Type:         params.Type,
		BalanceAfter: balanceAfter,
		Details:      append(json.RawMessage(nil), details...),
		CreatedAt:    r.tx.now(),
	}
	if params.PlayerID != nil {
		id := *params.PlayerID
		rec.PlayerID = &id
	}
	if params.Reference != nil {
		ref := *params.Reference
		rec.Reference = &ref
		r.tx.st.refs[ref] = len(r.tx.st.txs)
	}
	r.tx.st.txs = append(r.tx.st.txs, rec)
	return cloneRecord(rec), nil
}

func (r *transactionRepo) ListByPlayer(_ context.Context, playerID int64, filter domain.HistoryFilter) ([]*domain.TransactionRecord, error) {
	filter = filter.Normalize()
	var out []*domain.TransactionRecord
	for i := len(r.tx.st.txs) - 1; i >= 0 && len(out) < filter.Limit; i-- {
		rec := r.tx.st.txs[i]
		if rec.PlayerID == nil || *rec.PlayerID != playerID {
			continue
		}
		if filter.Currency != nil && rec.Currency != *filter.Currency {
			continue
		}
		out = append(out, cloneRecord(rec))
	}
	return out, nil
}

func (r *transactionRepo) SumByPlayer(_ context.Context, playerID int64) (domain.BalanceSheet, error) {
	sheet := domain.BalanceSheet{}
	for _, c := range domain.AllCurrencies() {
		sheet[c] = 0
	}
	for _, rec := range r.tx.st.txs {
		if rec.PlayerID != nil && *rec.PlayerID == playerID {
			sheet[rec.Currency] += rec.Amount
		}
	}
	return sheet, nil
}

func (r *transactionRepo) SumSince(_ context.Context, playerID int64, txType domain.TransactionType, currency domain.Currency, since time.Time) (int64, error) {
	var sum int64
	for _, rec := range r.tx.st.txs {
		if rec.PlayerID == nil || *rec.PlayerID != playerID {
			continue
		}
		if rec.Type != txType || rec.Currency != currency || rec.CreatedAt.Before(since) {
			continue
		}
		if rec.Amount < 0 {
			sum -= rec.Amount
		} else {
			sum += rec.Amount
		}
	}
	return sum, nil
}

func cloneRecord(rec *domain.TransactionRecord) *domain.TransactionRecord {
	if rec == nil {
		return nil
	}
	out := *rec
	out.Details = append(json.RawMessage(nil), rec.Details...)
	return &out
}

type guildRepo struct{ tx *memTx }

func (r *guildRepo) Get(_ context.Context, id int64) (*domain.Guild, error) {
	return r.tx.st.guilds[id].Clone(), nil
}

func (r *guildRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Guild, error) {
	return r.Get(ctx, id)
}

func (r *guildRepo) NameOrTagTaken(_ context.Context, name, tag string) (bool, error) {
	return r.taken(0, name, tag), nil
}

func (r *guildRepo) taken(except int64, name, tag string) bool {
	n, t := domain.NormalizeGuildKey(name), domain.NormalizeGuildKey(tag)
	for id, g := range r.tx.st.guilds {
		if id == except {
			continue
		}
		if domain.NormalizeGuildKey(g.Name) == n || domain.NormalizeGuildKey(g.Tag) == t {
			return true
		}
	}
	return false
}

func (r *guildRepo) Create(_ context.Context, g *domain.Guild) error {
	if r.taken(0, g.Name, g.Tag) {
		return domain.ErrNameOrTagTaken(g.Name, g.Tag)
	}
	if err := r.checkRoster(g); err != nil {
		return err
	}
	r.tx.st.nextGuildID++
	g.ID = r.tx.st.nextGuildID
	r.tx.st.guilds[g.ID] = g.Clone()
	return nil
}

func (r *guildRepo) Save(_ context.Context, g *domain.Guild) error {
	if _, ok := r.tx.st.guilds[g.ID]; !ok {
		return domain.ErrNotFound("guild", fmt.Sprint(g.ID))
	}
	if r.taken(g.ID, g.Name, g.Tag) {
		return domain.ErrNameOrTagTaken(g.Name, g.Tag)
	}
	if err := r.checkRoster(g); err != nil {
		return err
	}
	cp := g.Clone()
	for id, b := range cp.Bank {
		if b.Quantity <= 0 {
			delete(cp.Bank, id)
		}
	}
	r.tx.st.guilds[g.ID] = cp
	return nil
}

// checkRoster mirrors the unique constraints of guild_members.
func (r *guildRepo) checkRoster(g *domain.Guild) error {
	if g.BankGold < 0 {
		return fmt.Errorf("guild %d: negative bank gold", g.ID)
	}
	if g.LeaderCount() > 1 {
		return fmt.Errorf("guild %d: more than one leader", g.ID)
	}
	for pid := range g.Members {
		for id, other := range r.tx.st.guilds {
			if id == g.ID {
				continue
			}
			if _, ok := other.Members[pid]; ok {
				return domain.ErrConflict(fmt.Sprintf("player %d already belongs to guild %d", pid, id))
			}
		}
	}
	return nil
}

func (r *guildRepo) Delete(_ context.Context, id int64) error {
	for pid, p := range r.tx.st.players {
		if p.GuildID != nil && *p.GuildID == id {
			cp := p.Clone()
			cp.GuildID = nil
			cp.UpdatedAt = r.tx.now()
			r.tx.st.players[pid] = cp
		}
	}
	delete(r.tx.st.guilds, id)
	return nil
}

func (r *guildRepo) List(_ context.Context, limit int) ([]*domain.Guild, error) {
	out := make([]*domain.Guild, 0, len(r.tx.st.guilds))
	for _, g := range r.tx.st.guilds {
		out = append(out, g.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level > out[j].Level
		}
		if out[i].Exp != out[j].Exp {
			return out[i].Exp > out[j].Exp
		}
		return out[i].ID < out[j].ID
	})
	if limit = clampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type raidRepo struct{ tx *memTx }

func (r *raidRepo) Archive(_ context.Context, rec *domain.RaidRecord) (bool, error) {
	if _, exists := r.tx.st.raids[rec.ID]; exists {
		return false, nil
	}
	r.tx.st.raids[rec.ID] = cloneRaid(rec)
	return true, nil
}

func (r *raidRepo) Get(_ context.Context, id uuid.UUID) (*domain.RaidRecord, error) {
	rec, ok := r.tx.st.raids[id]
	if !ok {
		return nil, nil
	}
	return cloneRaid(rec), nil
}

func (r *raidRepo) ListByPlayer(_ context.Context, playerID int64, limit int) ([]*domain.RaidRecord, error) {
	var out []*domain.RaidRecord
	for _, rec := range r.tx.st.raids {
		if slices.Contains(rec.MemberIDs, playerID) {
			out = append(out, cloneRaid(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndedAt.After(out[j].EndedAt) })
	if limit = clampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneRaid(rec *domain.RaidRecord) *domain.RaidRecord {
	out := *rec
	out.MemberIDs = append([]int64(nil), rec.MemberIDs...)
	out.Loot = append([]domain.LootAward{}, rec.Loot...)
	return &out
}

type pvpRepo struct{ tx *memTx }

func (r *pvpRepo) Insert(_ context.Context, m *domain.PvPMatch) error {
	for _, existing := range r.tx.st.matches {
		if existing.ID == m.ID {
			return domain.ErrConflict("duplicate match " + m.ID.String())
		}
	}
	cp := *m
	r.tx.st.matches = append(r.tx.st.matches, &cp)
	return nil
}

func (r *pvpRepo) ListByPlayer(_ context.Context, playerID int64, limit int) ([]*domain.PvPMatch, error) {
	limit = clampLimit(limit)
	var out []*domain.PvPMatch
	for i := len(r.tx.st.matches) - 1; i >= 0 && len(out) < limit; i-- {
		m := r.tx.st.matches[i]
		if m.ChallengerID == playerID || m.OpponentID == playerID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

type outboxRepo struct{ tx *memTx }

func (r *outboxRepo) Insert(_ context.Context, draft domain.OutboxDraft) error {
	r.tx.st.nextOutboxID++
	r.tx.st.outbox = append(r.tx.st.outbox, &outboxEntry{row: domain.OutboxRow{
		ID:            r.tx.st.nextOutboxID,
		EventID:       draft.EventID,
		AggregateType: string(draft.AggregateType),
		AggregateID:   draft.AggregateID,
		EventType:     string(draft.EventType),
		PartitionKey:  draft.PartitionKey,
		Headers:       append(json.RawMessage(nil), draft.Headers...),
		Payload:       append(json.RawMessage(nil), draft.Payload...),
		OccurredAt:    draft.OccurredAt,
	}})
	return nil
}

func (r *outboxRepo) FetchUnpublished(_ context.Context, limit int) ([]domain.OutboxRow, error) {
	var out []domain.OutboxRow
	for _, e := range r.tx.st.outbox {
		if len(out) >= limit {
			break
		}
		if e.publishedAt == nil {
			out = append(out, e.row)
		}
	}
	return out, nil
}

func (r *outboxRepo) MarkPublished(_ context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	now := r.tx.now()
	// the backing array and entries are shared with the committed state
	r.tx.st.outbox = slices.Clone(r.tx.st.outbox)
	for i, e := range r.tx.st.outbox {
		if e.publishedAt == nil && slices.Contains(ids, e.row.ID) {
			r.tx.st.outbox[i] = &outboxEntry{row: e.row, publishedAt: &now}
		}
	}
	return nil
}
