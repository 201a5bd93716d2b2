package user

func PendingNotices(m *Manager) int { return m.pendingNotices() }
