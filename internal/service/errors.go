package service

import "github.com/noah-isme/campus-connect-api/internal/apperror"

var (
	// ErrSendInFlight rejects a send while the previous one has not finished.
	ErrSendInFlight = apperror.New(apperror.KindConflict, "a message is already being sent")
	// ErrChatBlocked rejects sends between users where either blocked the other.
	ErrChatBlocked = apperror.New(apperror.KindForbidden, "messaging is blocked between these users")
	// ErrDisappearingConsentRequired asks the user to acknowledge disappearing messages first.
	ErrDisappearingConsentRequired = apperror.New(apperror.KindValidation, "disappearing messages must be acknowledged before enabling")
	// ErrNotMember is returned when leaving or posting into a group the user has not joined.
	ErrNotMember = apperror.New(apperror.KindConflict, "user is not a member of this group")
	// ErrUnknownGroup is returned for group ids outside the catalog.
	ErrUnknownGroup = apperror.New(apperror.KindNotFound, "group not found")
	// ErrNotParticipant is returned when the caller is not part of the chat.
	ErrNotParticipant = apperror.New(apperror.KindForbidden, "user is not a participant of this chat")
	// ErrInvalidChat is returned for chat ids that name neither a direct nor a group chat.
	ErrInvalidChat = apperror.New(apperror.KindValidation, "invalid chat id")
	// ErrSelfChat is returned when opening a direct chat with oneself.
	ErrSelfChat = apperror.New(apperror.KindValidation, "cannot chat with yourself")
	// ErrEmptyMessage is returned when the text is empty after sanitising.
	ErrEmptyMessage = apperror.New(apperror.KindValidation, "message is empty")
	// ErrInvalidMessageText is returned for text that is not valid UTF-8 or carries control characters.
	ErrInvalidMessageText = apperror.New(apperror.KindValidation, "message contains invalid characters")
	// ErrReplyTargetMissing is returned when replying to an unknown message.
	ErrReplyTargetMissing = apperror.New(apperror.KindNotFound, "replied message not found")
	// ErrMessageNotFound is returned for unknown message ids.
	ErrMessageNotFound = apperror.New(apperror.KindNotFound, "message not found")
	// ErrMessageBusy is returned when concurrent writers keep an update from committing.
	ErrMessageBusy = apperror.New(apperror.KindConflict, "message is being changed, try again")
	// ErrNotMessageOwner is returned when editing or deleting someone else's message.
	ErrNotMessageOwner = apperror.New(apperror.KindForbidden, "only the sender can change this message")
	// ErrComposerClosed is returned by a composer after Close.
	ErrComposerClosed = apperror.New(apperror.KindValidation, "composer closed")
	// ErrSessionClosed is returned by a chat session after Close.
	ErrSessionClosed = apperror.New(apperror.KindValidation, "chat session closed")
	// ErrNotRetryable is returned by Retry outside the error state.
	ErrNotRetryable = apperror.New(apperror.KindValidation, "chat session is not in the error state")
	// ErrChatTimeout is the failure reported when no initial snapshot arrives in time.
	ErrChatTimeout = apperror.New(apperror.KindTimeout, "timed out waiting for messages")
	// ErrSubscriptionEnded is reported when the live feed ends before its first snapshot.
	ErrSubscriptionEnded = apperror.New(apperror.KindNetwork, "message subscription ended")
	// ErrInvalidPushToken is returned for tokens that are not Expo push tokens.
	ErrInvalidPushToken = apperror.New(apperror.KindValidation, "invalid push token")
	// ErrCannotBlockSelf is returned when a user tries to block themselves.
	ErrCannotBlockSelf = apperror.New(apperror.KindValidation, "cannot block yourself")
	// ErrUsernameTaken is returned when another user already holds the username.
	ErrUsernameTaken = apperror.New(apperror.KindConflict, "username already taken")
	// ErrNotPostOwner is returned when changing someone else's post or comment.
	ErrNotPostOwner = apperror.New(apperror.KindForbidden, "only the author can change this content")
	// ErrCommentParentMismatch is returned when replying to a comment of another post.
	ErrCommentParentMismatch = apperror.New(apperror.KindValidation, "parent comment belongs to a different post")
	// ErrAdminRequired guards administrative smart-service actions.
	ErrAdminRequired = apperror.New(apperror.KindForbidden, "administrator role required")
	// ErrUserNotFound is returned when the user row does not exist.
	ErrUserNotFound = apperror.New(apperror.KindNotFound, "user not found")
	// ErrPostNotFound is returned for unknown posts.
	ErrPostNotFound = apperror.New(apperror.KindNotFound, "post not found")
	// ErrCommentNotFound is returned for unknown comments.
	ErrCommentNotFound = apperror.New(apperror.KindNotFound, "comment not found")
	// ErrInvalidAction is returned for smart-service bodies that fail schema validation.
	ErrInvalidAction = apperror.New(apperror.KindValidation, "invalid smart-service request")
	// ErrUploadTooLarge indicates the payload exceeded the configured limit.
	ErrUploadTooLarge = apperror.New(apperror.KindValidation, "file exceeds maximum allowed size")
	// ErrUploadTypeNotAllowed indicates the image type is not permitted.
	ErrUploadTypeNotAllowed = apperror.New(apperror.KindValidation, "file type not allowed")
)
