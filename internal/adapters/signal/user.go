package signal

// handleUserOnline joins the user's personal notification channel and
// records presence. The online-user list is broadcast only when this was
// the user's first live connection.
func (ctl *Controller) handleUserOnline(sess *clientSession) (any, error) {
	ctl.Orch.Online(sess.user, sess.id)
	return nil, nil
}
