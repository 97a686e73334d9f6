package errors

// Common error codes used across domains
const (
	CodeNotFound      Code = "not_found"
	CodeAlreadyExists Code = "already_exists"
	CodeInvalid       Code = "invalid"
	CodeUnavailable   Code = "unavailable"
	CodeFailed        Code = "failed"
	CodeInternal      Code = "internal_error"
)

// ============================================================================
// Configuration Errors
// ============================================================================

var (
	// ErrConfigInvalid is returned when the run configuration fails validation
	ErrConfigInvalid = New(DomainConfig, CodeInvalid,
		"Invalid configuration")

	// ErrRemoteTargetMissing is returned when no remote target is configured
	ErrRemoteTargetMissing = New(DomainConfig, "remote_target_missing",
		"No remote target configured").
		WithRemedy("Set remote.host, remote.user and remote.key_path via flags, config file or RTK_REMOTE_* environment variables")
)

// ============================================================================
// Environment Preparation Errors
// ============================================================================

var (
	// ErrToolMissing is returned when a required tool is absent after one
	// install attempt
	ErrToolMissing = New(DomainTools, "tool_missing",
		"Required tool not found")
)

// ============================================================================
// Source Acquisition Errors
// ============================================================================

var (
	// ErrDownloadFailed is returned when the kernel source download fails
	ErrDownloadFailed = New(DomainSource, "download_failed",
		"Kernel source download failed")

	// ErrExtractFailed is returned when the source archive cannot be extracted
	ErrExtractFailed = New(DomainSource, "extract_failed",
		"Kernel source extraction failed")

	// ErrSourceMissing is returned when the expected source tree is absent
	ErrSourceMissing = New(DomainSource, CodeNotFound,
		"Kernel source tree not found")
)

// ============================================================================
// Build Errors
// ============================================================================

var (
	// ErrCompileFailed is returned when the kernel compilation fails
	ErrCompileFailed = New(DomainBuild, "compile_failed",
		"Kernel compilation failed")

	// ErrPackageFailed is returned when RPM packaging fails
	ErrPackageFailed = New(DomainBuild, "package_failed",
		"Kernel packaging failed")

	// ErrNoArtifacts is returned when packaging reported success but no
	// kernel RPMs were produced
	ErrNoArtifacts = New(DomainBuild, "no_artifacts",
		"Packaging produced no kernel RPMs").
		WithRemedy("Check the rpmbuild output directory and the packaging log for silent misconfiguration")
)

// ============================================================================
// Deploy Errors
// ============================================================================

var (
	// ErrEmptyPackageSet is returned when deploy is invoked with no RPMs
	ErrEmptyPackageSet = New(DomainDeploy, "empty_package_set",
		"No kernel packages to deploy").
		WithRemedy("Run 'rtkctl build' first so the workspace contains kernel RPMs")

	// ErrConnectFailed is returned when the SSH connection cannot be established
	ErrConnectFailed = New(DomainDeploy, "connect_failed",
		"Could not connect to remote target")

	// ErrTransferFailed is returned when copying packages to the target fails
	ErrTransferFailed = New(DomainDeploy, "transfer_failed",
		"Package transfer failed")

	// ErrRemoteCommandFailed is returned when a remote install step exits non-zero
	ErrRemoteCommandFailed = New(DomainDeploy, "remote_command_failed",
		"Remote command failed")
)

// ============================================================================
// Verification Errors
// ============================================================================

var (
	// ErrNotRTKernel is the fatal RT gate: neither the running kernel nor
	// the active config indicates PREEMPT_RT
	ErrNotRTKernel = New(DomainVerify, "not_rt_kernel",
		"Running kernel is not a PREEMPT_RT kernel").
		WithRemedy("Boot into the RT kernel (check the GRUB default entry) and run 'rtkctl verify' again")
)

// ============================================================================
// Storage Errors
// ============================================================================

var (
	// ErrObjectNotFound is returned when an archive object does not exist
	ErrObjectNotFound = New(DomainStorage, CodeNotFound,
		"Archive object not found")

	// ErrStorageUnavailable is returned when the archive backend is unreachable
	ErrStorageUnavailable = New(DomainStorage, CodeUnavailable,
		"Archive backend unavailable")
)
