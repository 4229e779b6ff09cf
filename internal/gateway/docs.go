package gateway

import (
	"errors"

	"github.com/soyeahso/roster/internal/remote"
)

// errorCode maps a directory error onto an RPC error code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, remote.ErrClosed):
		return CodeUnavailable
	case errors.Is(err, remote.ErrNotFound):
		return CodeNotFound
	default:
		return CodeInternal
	}
}

func (s *Server) rpcDocGet(rc *RequestContext) {
	var p DocParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.Collection == "" || p.ID == "" {
		rc.RespondError(CodeInvalidParams, "collection and id are required")
		return
	}

	doc, ok, err := s.dir.GetDoc(rc.Context(), p.Collection, p.ID)
	if err != nil {
		rc.RespondError(errorCode(err), err.Error())
		return
	}
	if !ok {
		doc = remote.Document{ID: p.ID}
	}
	rc.Respond(DocResult{Doc: doc, Exists: ok})
}

func (s *Server) rpcDocSet(rc *RequestContext) {
	var p SetDocParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.Collection == "" || p.ID == "" {
		rc.RespondError(CodeInvalidParams, "collection and id are required")
		return
	}

	if err := s.dir.SetDoc(rc.Context(), p.Collection, p.ID, p.Fields, p.Merge); err != nil {
		s.log.Warn().Err(err).Str("collection", p.Collection).Str("id", p.ID).Msg("doc.set failed")
		rc.RespondError(errorCode(err), err.Error())
		return
	}
	rc.Respond(map[string]any{"ok": true})
}

func (s *Server) rpcDocBatch(rc *RequestContext) {
	var p BatchParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.Collection == "" {
		rc.RespondError(CodeInvalidParams, "collection is required")
		return
	}
	for _, w := range p.Writes {
		if w.ID == "" {
			rc.RespondError(CodeInvalidParams, "every write needs an id")
			return
		}
	}

	if err := s.dir.BatchWrite(rc.Context(), p.Collection, p.Writes); err != nil {
		s.log.Warn().Err(err).Str("collection", p.Collection).Msg("doc.batch failed")
		rc.RespondError(errorCode(err), err.Error())
		return
	}
	rc.Respond(map[string]any{"count": len(p.Writes)})
}

func (s *Server) rpcDocSubscribe(rc *RequestContext) {
	var p SubscribeParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.Collection == "" || p.ID == "" {
		rc.RespondError(CodeInvalidParams, "collection and id are required")
		return
	}

	subID, ctx, ok := rc.Conn.openSubscription(p.SubscriptionID)
	if !ok {
		rc.RespondError(CodeInvalidParams, "subscription id already in use")
		return
	}
	ch, err := s.dir.SubscribeDoc(ctx, p.Collection, p.ID)
	if err != nil {
		rc.Conn.cancelSubscription(subID)
		rc.RespondError(errorCode(err), err.Error())
		return
	}

	// The response goes out before the first snapshot event.
	rc.Respond(SubscribeResult{SubscriptionID: subID})
	s.log.Debug().Str("connId", rc.Conn.ConnID).Str("sub", subID).
		Str("collection", p.Collection).Str("id", p.ID).Msg("document subscription opened")

	go func() {
		for snap := range ch {
			err := rc.Conn.SendEvent(EventDocSnapshot, DocSnapshotEvent{
				SubscriptionID: subID,
				Collection:     p.Collection,
				Doc:            snap.Doc,
				Exists:         snap.Exists,
			}, s.eventSeq.Add(1))
			if err != nil {
				rc.Conn.cancelSubscription(subID)
				return
			}
		}
		s.subscriptionEnded(rc.Conn, subID)
	}()
}

func (s *Server) rpcCollectionSubscribe(rc *RequestContext) {
	var p SubscribeParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.Collection == "" {
		rc.RespondError(CodeInvalidParams, "collection is required")
		return
	}

	subID, ctx, ok := rc.Conn.openSubscription(p.SubscriptionID)
	if !ok {
		rc.RespondError(CodeInvalidParams, "subscription id already in use")
		return
	}
	ch, err := s.dir.SubscribeCollection(ctx, p.Collection)
	if err != nil {
		rc.Conn.cancelSubscription(subID)
		rc.RespondError(errorCode(err), err.Error())
		return
	}

	rc.Respond(SubscribeResult{SubscriptionID: subID})
	s.log.Debug().Str("connId", rc.Conn.ConnID).Str("sub", subID).
		Str("collection", p.Collection).Msg("collection subscription opened")

	go func() {
		for snap := range ch {
			err := rc.Conn.SendEvent(EventCollectionSnapshot, CollectionSnapshotEvent{
				SubscriptionID: subID,
				Collection:     p.Collection,
				Docs:           snap.Docs,
			}, s.eventSeq.Add(1))
			if err != nil {
				rc.Conn.cancelSubscription(subID)
				return
			}
		}
		s.subscriptionEnded(rc.Conn, subID)
	}()
}

func (s *Server) rpcSubscriptionCancel(rc *RequestContext) {
	var p CancelParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if !rc.Conn.cancelSubscription(p.SubscriptionID) {
		rc.RespondError(CodeNotFound, "unknown subscription: "+p.SubscriptionID)
		return
	}
	s.log.Debug().Str("connId", rc.Conn.ConnID).Str("sub", p.SubscriptionID).Msg("subscription cancelled")
	rc.Respond(map[string]any{"ok": true})
}

// subscriptionEnded runs after a directory subscription channel closed. If
// the client did not cancel it, the directory ended it and the client is
// told so.
func (s *Server) subscriptionEnded(c *Conn, subID string) {
	if !c.cancelSubscription(subID) {
		return
	}
	s.log.Debug().Str("connId", c.ConnID).Str("sub", subID).Msg("subscription ended by directory")
	c.SendEvent(EventSubscriptionClosed, SubscriptionClosedEvent{
		SubscriptionID: subID,
		Reason:         "directory closed the subscription",
	}, s.eventSeq.Add(1))
}
