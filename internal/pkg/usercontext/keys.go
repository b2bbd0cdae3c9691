package usercontext

// KeyUserContext is the Locals key shared by controllers and middlewares.
const KeyUserContext = "USER_CONTEXT"
