package memory

import "credit-automation/internal/domain"

func cloneStrategy(s *domain.Strategy) *domain.Strategy {
	c := *s
	c.Payload = append(domain.Payload(nil), s.Payload...)
	c.Triggers = append([]domain.Trigger(nil), s.Triggers...)
	return &c
}

func cloneBundle(b *domain.Bundle) *domain.Bundle {
	c := *b
	c.StrategyIDs = append([]int64(nil), b.StrategyIDs...)
	return &c
}

// window clamps [offset, offset+limit) to n. limit <= 0 means no limit.
func window(n, offset, limit int64) (int64, int64) {
	if offset >= n {
		return n, n
	}
	end := n
	if limit > 0 && offset+limit < n {
		end = offset + limit
	}
	return offset, end
}
