package messaging

// Topic constants for the turtlego messaging system
const (
	// Mining workflow
	TopicBlockTemplates  = "turtle.block_templates"  // jobmanager → miners/pools
	TopicBlockCandidates = "turtle.block_candidates" // miners/pools → blocksubmit
	TopicBlockResults    = "turtle.block_results"    // blocksubmit → consumers

	// Chain follower output
	TopicChainBlocks = "turtle.chain_blocks" // chainsync → consumers
)
