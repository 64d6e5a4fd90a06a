package netio

// Protocol header names.
const (
	// HeaderUploadOffset indicates a byte offset within a resource.
	HeaderUploadOffset = "Upload-Offset"

	// HeaderUploadLength indicates the size of the entire upload in bytes.
	HeaderUploadLength = "Upload-Length"

	// HeaderUploadMetadata carries the encoded key-value metadata of an upload.
	HeaderUploadMetadata = "Upload-Metadata"

	// HeaderUploadChecksum carries the integrity hash of a single chunk.
	HeaderUploadChecksum = "Upload-Checksum"

	// HeaderTusResumable is the protocol version used by client and server.
	HeaderTusResumable = "Tus-Resumable"

	// HeaderTusVersion is a comma-separated list of versions supported by the server.
	HeaderTusVersion = "Tus-Version"

	// HeaderTusExtension is a comma-separated list of extensions supported by the server.
	HeaderTusExtension = "Tus-Extension"

	// HeaderTusMaxSize is the maximum allowed size of an entire upload in bytes.
	HeaderTusMaxSize = "Tus-Max-Size"

	// HeaderTusChecksumAlgorithm lists the hash algorithms the server accepts.
	HeaderTusChecksumAlgorithm = "Tus-Checksum-Algorithm"
)

// ProtocolVersion is the protocol version this client speaks.
const ProtocolVersion = "1.0.0"

// ContentTypeOffsetStream is the required content type of chunk transfer requests.
const ContentTypeOffsetStream = "application/offset+octet-stream"

// StatusChecksumMismatch is the non-standard status code servers use to signal
// that a chunk's checksum did not match its content.
const StatusChecksumMismatch = 460

// ExtensionCreation, ExtensionTermination and ExtensionChecksum are the
// extension names advertised via Tus-Extension that this client understands.
const (
	ExtensionCreation    = "creation"
	ExtensionTermination = "termination"
	ExtensionChecksum    = "checksum"
)
