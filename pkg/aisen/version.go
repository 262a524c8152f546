package aisen

// Version is the running agent version, reported on start and sent with
// every notice.
const Version = "1.4.0"

// NotifierName identifies this agent to the collector.
const NotifierName = "aisen-go"
