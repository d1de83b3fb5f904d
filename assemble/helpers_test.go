package assemble

import "sync"

// fakeNetwork is a deterministic, in-process Network test double. Every
// call is recorded in invocation order and answers synchronously from a
// per-salt response queue, falling through to a sensible default (a
// single successful response) when the queue is empty.
type fakeNetwork struct {
	mu sync.Mutex

	liveNodes int
	relayFn   func(from PubKey, payload []byte)

	putLog       []Hash
	putResponses map[Hash][]int

	getLog       []Hash
	getResponses map[Hash][][]byte

	sendLog       []Hash
	sendResponses map[Hash][][]PubKey
}

func newFakeNetwork(liveNodes int) *fakeNetwork {
	return &fakeNetwork{
		liveNodes:     liveNodes,
		putResponses:  make(map[Hash][]int),
		getResponses:  make(map[Hash][][]byte),
		sendResponses: make(map[Hash][][]PubKey),
	}
}

func (n *fakeNetwork) LiveNodeCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.liveNodes
}

func (n *fakeNetwork) setPutResponses(salt Hash, responses ...int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.putResponses[salt] = responses
}

func (n *fakeNetwork) setGetResponses(salt Hash, responses ...[]byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.getResponses[salt] = responses
}

func (n *fakeNetwork) setSendResponses(key Hash, responses ...[]PubKey) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sendResponses[key] = responses
}

func (n *fakeNetwork) Put(entry []byte, salt Hash, cb PutCallback, branch, window, limit int) {
	n.mu.Lock()
	n.putLog = append(n.putLog, salt)
	resp := 1
	if queue, ok := n.putResponses[salt]; ok && len(queue) > 0 {
		resp = queue[0]
		n.putResponses[salt] = queue[1:]
	}
	n.mu.Unlock()
	cb(entry, resp)
}

func (n *fakeNetwork) Get(key PubKey, salt Hash, timestamp int64, cb GetCallback, branch, window, limit int) {
	n.mu.Lock()
	n.getLog = append(n.getLog, salt)
	var item []byte
	if queue, ok := n.getResponses[salt]; ok && len(queue) > 0 {
		item = queue[0]
		n.getResponses[salt] = queue[1:]
	}
	n.mu.Unlock()
	cb(item, true)
}

func (n *fakeNetwork) Send(receiver PubKey, payload []byte, cb SendCallback, branch, window, limit, hitLimit int) {
	key := ContentHash(payload)
	n.mu.Lock()
	n.sendLog = append(n.sendLog, key)
	nodes := []PubKey{receiver}
	if queue, ok := n.sendResponses[key]; ok && len(queue) > 0 {
		nodes = queue[0]
		n.sendResponses[key] = queue[1:]
	}
	n.mu.Unlock()
	cb(payload, nodes)
}

func (n *fakeNetwork) OnRelay(fn func(from PubKey, payload []byte)) {
	n.mu.Lock()
	n.relayFn = fn
	n.mu.Unlock()
}

func (n *fakeNetwork) injectRelay(from PubKey, payload []byte) {
	n.mu.Lock()
	fn := n.relayFn
	n.mu.Unlock()
	if fn != nil {
		fn(from, payload)
	}
}

// fakeSink records every Sink callback and exposes a channel per verb so
// tests can block for the terminal event they care about without
// polling.
type fakeSink struct {
	mu sync.Mutex

	putDoneCh      chan struct{}
	getDoneCh      chan struct{}
	relayMsgDoneCh chan struct{}
	relayURIDoneCh chan struct{}

	lastPutErr  ErrorCode
	lastGetErr  ErrorCode
	lastPayload []byte

	lastRelayMsgErr ErrorCode
	lastRelayURIErr ErrorCode

	incomingURIs []incomingURIEvent
	incomingMsgs []incomingMsgEvent
}

type incomingURIEvent struct {
	sender PubKey
	uri    URI
	ts     int64
}

type incomingMsgEvent struct {
	from    PubKey
	payload []byte
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		putDoneCh:      make(chan struct{}, 16),
		getDoneCh:      make(chan struct{}, 16),
		relayMsgDoneCh: make(chan struct{}, 16),
		relayURIDoneCh: make(chan struct{}, 16),
	}
}

func (s *fakeSink) PutDone(_ URI, err ErrorCode) {
	s.mu.Lock()
	s.lastPutErr = err
	s.mu.Unlock()
	s.putDoneCh <- struct{}{}
}

func (s *fakeSink) GetDone(_ PubKey, _ URI, _ int64, payload []byte, err ErrorCode) {
	s.mu.Lock()
	s.lastGetErr = err
	s.lastPayload = payload
	s.mu.Unlock()
	s.getDoneCh <- struct{}{}
}

func (s *fakeSink) RelayMessageDone(_ PubKey, err ErrorCode) {
	s.mu.Lock()
	s.lastRelayMsgErr = err
	s.mu.Unlock()
	s.relayMsgDoneCh <- struct{}{}
}

func (s *fakeSink) RelayURIDone(_ PubKey, _ URI, _ int64, err ErrorCode) {
	s.mu.Lock()
	s.lastRelayURIErr = err
	s.mu.Unlock()
	s.relayURIDoneCh <- struct{}{}
}

func (s *fakeSink) IncomingRelayURI(sender PubKey, uri URI, ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incomingURIs = append(s.incomingURIs, incomingURIEvent{sender, uri, ts})
}

func (s *fakeSink) IncomingRelayMessage(from PubKey, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incomingMsgs = append(s.incomingMsgs, incomingMsgEvent{from, payload})
}
