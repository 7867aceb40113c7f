package chat

import (
	"sort"

	"github.com/sirupsen/logrus"
)

// reassemblyWindow is how many distinct sequences a chunkReassembler
// keeps partial state for at once. A sequence older than this when a
// new one arrives is dropped and logged rather than grown without
// bound — a handful of concurrent onboarding runs is the expected case,
// not thousands.
const reassemblyWindow = 32

type partialRun struct {
	msgTot uint32
	chunks map[uint32]newMemberChunk
}

// chunkReassembler buffers NewMemberInfo/NewMemberInfoCont chunks by
// sequence until every msg_nbr in [0, msg_tot) has arrived, then hands
// back the flattened NewMembers payload. It tracks arrival order of
// sequences only to know which to evict once the window is full.
type chunkReassembler struct {
	runs  map[uint64]*partialRun
	order []uint64
}

func newChunkReassembler() *chunkReassembler {
	return &chunkReassembler{runs: make(map[uint64]*partialRun)}
}

// Add stores one chunk of a run and returns the reassembled NewMembers
// once every chunk of its sequence has arrived. ok is false while chunks
// are still outstanding.
func (r *chunkReassembler) Add(sequence uint64, msgNbr, msgTot uint32, chunk newMemberChunk) (NewMembers, bool) {
	run, exists := r.runs[sequence]
	if !exists {
		if len(r.order) >= reassemblyWindow {
			oldest := r.order[0]
			r.order = r.order[1:]
			delete(r.runs, oldest)
			logrus.WithField("sequence", oldest).Debug("chat: dropped stale onboarding reassembly, window full")
		}
		run = &partialRun{msgTot: msgTot, chunks: make(map[uint32]newMemberChunk)}
		r.runs[sequence] = run
		r.order = append(r.order, sequence)
	}
	run.chunks[msgNbr] = chunk

	if uint32(len(run.chunks)) < run.msgTot {
		return NewMembers{}, false
	}

	nm, complete := flattenRun(run)
	if !complete {
		return NewMembers{}, false
	}

	delete(r.runs, sequence)
	for i, s := range r.order {
		if s == sequence {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nm, true
}

func flattenRun(run *partialRun) (NewMembers, bool) {
	nbrs := make([]int, 0, len(run.chunks))
	for nbr := range run.chunks {
		nbrs = append(nbrs, int(nbr))
	}
	sort.Ints(nbrs)

	var nm NewMembers
	var first *newMemberChunk
	total := 0
	for _, nbr := range nbrs {
		c := run.chunks[uint32(nbr)]
		if c.IsFirst {
			cc := c
			first = &cc
		}
		total += len(c.Members)
	}
	if first == nil {
		return NewMembers{}, false
	}
	if uint32(total) != first.NumMembers {
		return NewMembers{}, false
	}

	members := make([]MemberPair, total)
	for _, nbr := range nbrs {
		c := run.chunks[uint32(nbr)]
		offset := 0
		if !c.IsFirst {
			offset = int(c.MemberIndex)
		}
		copy(members[offset:], c.Members)
	}

	nm.OwnerChain = first.OwnerChain
	nm.RekeyingChain = first.RekeyingChain
	nm.MyInitialChain = first.MyInitialChain
	nm.Members = members
	return nm, true
}
