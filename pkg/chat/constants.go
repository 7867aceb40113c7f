package chat

// Wire constants shared by every implementation that talks this
// protocol. Member-list and rekeying chunk sizes bound how large any
// single ChatMessageOutput's payload can be.
const (
	PairsPerMemberList = 10 // members in an onboarding run's first chunk
	PairsPerContChunk  = 12 // members in each onboarding continuation chunk

	// PtsPerChainList bounds how many cloaked rekeying points
	// (EncryptedChainCodes.Points) a single output carries; a roster
	// larger than this rekeys over ceil(n/PtsPerChainList) outputs.
	PtsPerChainList = 16

	// PaymentDataLen bounds a single PlainText message body.
	PaymentDataLen = 1024

	// Topic is the network-layer channel name used when the embedding
	// transport carries a dedicated topic per traffic class.
	Topic = "chat"
)
